// Package record holds the accounting record types exchanged between the
// PostgreSQL source and the ClickHouse sink, and the normalization between them.
package record

import (
	"database/sql"
	"time"
)

// EventType classifies the session phase of an accounting record.
type EventType string

const (
	EventStart   EventType = "start"
	EventInterim EventType = "interim"
	EventStop    EventType = "stop"
)

// Raw is one radacct row as scanned from PostgreSQL. Optional columns keep
// their driver null types so normalization stays in one place.
type Raw struct {
	RadAcctID int64

	AcctSessionID sql.NullString
	AcctUniqueID  sql.NullString
	Username      sql.NullString
	Realm         sql.NullString

	NASIPAddress sql.NullString
	NASPortID    sql.NullString
	NASPortType  sql.NullString

	AcctStartTime  sql.NullTime
	AcctUpdateTime sql.NullTime
	AcctStopTime   sql.NullTime

	AcctInterval    sql.NullInt64
	AcctSessionTime sql.NullInt64
	AcctAuthentic   sql.NullString

	ConnectInfoStart sql.NullString
	ConnectInfoStop  sql.NullString

	AcctInputOctets  sql.NullInt64
	AcctOutputOctets sql.NullInt64

	CalledStationID    sql.NullString
	CallingStationID   sql.NullString
	AcctTerminateCause sql.NullString

	ServiceType     sql.NullString
	FramedProtocol  sql.NullString
	FramedIPAddress sql.NullString
}

// Event derives the session phase. A row can carry both an update and a stop
// timestamp at once; stop wins.
func (r *Raw) Event() EventType {
	if r.AcctStopTime.Valid {
		return EventStop
	}
	if r.AcctUpdateTime.Valid {
		return EventInterim
	}
	return EventStart
}

// Row is one normalized radius_accounting row. Column names follow the sink
// table so the batch writer can append structs directly.
type Row struct {
	RadAcctID     int64  `ch:"radacctid"`
	AcctSessionID string `ch:"acctsessionid"`
	AcctUniqueID  string `ch:"acctuniqueid"`
	Username      string `ch:"username"`
	Realm         string `ch:"realm"`

	NASIPAddress string `ch:"nasipaddress"`
	NASPortID    string `ch:"nasportid"`
	NASPortType  string `ch:"nasporttype"`

	AcctStartTime  time.Time  `ch:"acctstarttime"`
	AcctUpdateTime *time.Time `ch:"acctupdatetime"`
	AcctStopTime   *time.Time `ch:"acctstoptime"`

	AcctInterval    int64  `ch:"acctinterval"`
	AcctSessionTime int64  `ch:"acctsessiontime"`
	AcctAuthentic   string `ch:"acctauthentic"`

	ConnectInfoStart string `ch:"connectinfo_start"`
	ConnectInfoStop  string `ch:"connectinfo_stop"`

	AcctInputOctets  int64 `ch:"acctinputoctets"`
	AcctOutputOctets int64 `ch:"acctoutputoctets"`

	CalledStationID    string `ch:"calledstationid"`
	CallingStationID   string `ch:"callingstationid"`
	AcctTerminateCause string `ch:"acctterminatecause"`

	ServiceType     string `ch:"servicetype"`
	FramedProtocol  string `ch:"framedprotocol"`
	FramedIPAddress string `ch:"framedipaddress"`

	EventType  string `ch:"event_type"`
	EdgeSiteID string `ch:"edge_site_id"`
}
