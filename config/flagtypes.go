package config

// Password is a string that redacts itself when printed.
type Password string

func (p *Password) String() string { return "..." }
func (p *Password) Expose() string { return string(*p) }
func (p *Password) Set(value string) error {
	*p = Password(value)
	return nil
}
