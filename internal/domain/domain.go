package domain

import (
	"github.com/yungbote/neurobridge-presence/internal/domain/chat"
	"github.com/yungbote/neurobridge-presence/internal/domain/presence"
)

const (
	EventPresentUsers   = presence.EventPresentUsers
	EventProfiles       = presence.EventProfiles
	EventMessage        = presence.EventMessage
	EventNotification   = presence.EventNotification
	EventControl        = presence.EventControl
	EventLogout         = presence.EventLogout
	EventGradeUpdate    = presence.EventGradeUpdate
	EventProgressUpdate = presence.EventProgressUpdate

	ControlStart           = presence.ControlStart
	ControlHeartbeat       = presence.ControlHeartbeat
	ControlSessionEnded    = presence.ControlSessionEnded
	ControlAnnouncement    = presence.ControlAnnouncement
	ControlAnnouncementEnd = presence.ControlAnnouncementEnd
)

type Session = presence.Session
type EventType = presence.EventType
type Event = presence.Event
type Control = presence.Control
type ControlType = presence.ControlType
type PresentUser = presence.PresentUser
type Location = presence.Location
type Profile = presence.Profile

type Message = chat.Message

var (
	AllEventTypes      = presence.AllEventTypes
	DecodeControl      = presence.DecodeControl
	DecodePresentUsers = presence.DecodePresentUsers
	DecodeProfiles     = presence.DecodeProfiles
	ParseLocation      = presence.ParseLocation
	DecodeMessage      = chat.DecodeMessage
	DecodeHistory      = chat.DecodeHistory
)
