package domain

import "fmt"

type OriginType string

const (
	OriginActivityPub OriginType = "activitypub"
	OriginPumpIo      OriginType = "pumpio"
	OriginGnuSocial   OriginType = "gnusocial"
	OriginTwitter     OriginType = "twitter"
)

func (t OriginType) IsValid() bool {
	switch t {
	case OriginActivityPub, OriginPumpIo, OriginGnuSocial, OriginTwitter:
		return true
	}
	return false
}

// Origin is one federated server with its own OID namespace
type Origin struct {
	Id   int64
	Name string
	Type OriginType
	Host string
}

func (o *Origin) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tName: %s \n\tType: %s \n\tHost: %s", o.Id, o.Name, o.Type, o.Host)
}
