package workermgmt

import (
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/iface"
)

// ClientIDArg contains a client identifier.
type ClientIDArg struct {
	ClientID int
}

// ComponentArg identifies a component.
type ComponentArg struct {
	Name  string
	LCore int    `json:",omitempty"`
	Type  string `json:",omitempty"`
}

// AttachArg attaches a port queue to a component.
type AttachArg struct {
	Port      iface.PortQueue
	Dir       vlantag.Dir
	Component string
	Ability   vlantag.Ability
}

// ClassifierArg identifies a classifier table entry.
// Vlan is omitted or negative for an untagged entry.
// MAC may be "default".
type ClassifierArg struct {
	Vlan *int `json:",omitempty"`
	MAC  string
	Port iface.PortID
}
