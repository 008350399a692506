package types

// ConnectionKind classifies an interface endpoint exposed by a running rapp
type ConnectionKind string

const (
	KindSubscriber   ConnectionKind = "subscriber"
	KindPublisher    ConnectionKind = "publisher"
	KindService      ConnectionKind = "service"
	KindActionClient ConnectionKind = "action_client"
	KindActionServer ConnectionKind = "action_server"
)

// Kinds returns every connection kind in canonical exposure order
func Kinds() []ConnectionKind {
	return []ConnectionKind{
		KindSubscriber,
		KindPublisher,
		KindService,
		KindActionClient,
		KindActionServer,
	}
}

// Valid reports whether k is one of the five known kinds
func (k ConnectionKind) Valid() bool {
	switch k {
	case KindSubscriber, KindPublisher, KindService, KindActionClient, KindActionServer:
		return true
	}
	return false
}

// Endpoints groups the interface names a rapp exposes while running,
// one list per connection kind
type Endpoints struct {
	Subscribers   []string `json:"subscribers,omitempty" yaml:"subscribers"`
	Publishers    []string `json:"publishers,omitempty" yaml:"publishers"`
	Services      []string `json:"services,omitempty" yaml:"services"`
	ActionClients []string `json:"action_clients,omitempty" yaml:"action_clients"`
	ActionServers []string `json:"action_servers,omitempty" yaml:"action_servers"`
}

// ByKind returns the endpoint names for a single connection kind
func (e Endpoints) ByKind(kind ConnectionKind) []string {
	switch kind {
	case KindSubscriber:
		return e.Subscribers
	case KindPublisher:
		return e.Publishers
	case KindService:
		return e.Services
	case KindActionClient:
		return e.ActionClients
	case KindActionServer:
		return e.ActionServers
	}
	return nil
}

// Empty reports whether no endpoint names are present in any category
func (e Endpoints) Empty() bool {
	for _, kind := range Kinds() {
		if len(e.ByKind(kind)) > 0 {
			return false
		}
	}
	return true
}

// Application run states reported by status queries
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// NoController is reported as the controller identity when no remote
// currently holds control
const NoController = "none"

// RappInfo is the wire snapshot of an installed application
type RappInfo struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	Description   string `json:"description,omitempty"`
	Compatibility string `json:"compatibility"`
	Status        string `json:"status"`
}
