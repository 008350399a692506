package types

// InviteRequest asks the arbiter to grant or cancel remote control
type InviteRequest struct {
	RemoteTargetName     string `json:"remote_target_name" binding:"required"`
	Cancel               bool   `json:"cancel"`
	ApplicationNamespace string `json:"application_namespace"`
}

// StartRequest asks the lifecycle controller to start an installed rapp
type StartRequest struct {
	Name       string            `json:"name" binding:"required"`
	Remappings map[string]string `json:"remappings,omitempty"`
}
