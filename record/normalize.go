package record

import (
	"database/sql"
	"time"
)

// Normalize converts a raw radacct row into a sink row. Null text becomes an
// empty string, null counters become zero, null update/stop timestamps stay
// null. A missing start timestamp falls back to now so the sink's event-time
// column is never empty for a session-start record.
func Normalize(r *Raw, now time.Time, siteID string) Row {
	return Row{
		RadAcctID:     r.RadAcctID,
		AcctSessionID: str(r.AcctSessionID),
		AcctUniqueID:  str(r.AcctUniqueID),
		Username:      str(r.Username),
		Realm:         str(r.Realm),

		NASIPAddress: str(r.NASIPAddress),
		NASPortID:    str(r.NASPortID),
		NASPortType:  str(r.NASPortType),

		AcctStartTime:  startTime(r.AcctStartTime, now),
		AcctUpdateTime: timePtr(r.AcctUpdateTime),
		AcctStopTime:   timePtr(r.AcctStopTime),

		AcctInterval:    i64(r.AcctInterval),
		AcctSessionTime: i64(r.AcctSessionTime),
		AcctAuthentic:   str(r.AcctAuthentic),

		ConnectInfoStart: str(r.ConnectInfoStart),
		ConnectInfoStop:  str(r.ConnectInfoStop),

		AcctInputOctets:  i64(r.AcctInputOctets),
		AcctOutputOctets: i64(r.AcctOutputOctets),

		CalledStationID:    str(r.CalledStationID),
		CallingStationID:   str(r.CallingStationID),
		AcctTerminateCause: str(r.AcctTerminateCause),

		ServiceType:     str(r.ServiceType),
		FramedProtocol:  str(r.FramedProtocol),
		FramedIPAddress: str(r.FramedIPAddress),

		EventType:  string(r.Event()),
		EdgeSiteID: siteID,
	}
}

func str(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func i64(v sql.NullInt64) int64 {
	if !v.Valid {
		return 0
	}
	return v.Int64
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func startTime(v sql.NullTime, now time.Time) time.Time {
	if v.Valid {
		return v.Time
	}
	return now
}
