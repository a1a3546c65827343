package videoroom

import (
	"errors"
)

var ServerError = errors.New("server error")
var PluginError = errors.New("videoroom plugin error")
var JoinRoomError = errors.New("videoroom, could not join room")
var ConfigureError = errors.New("videoroom configure answer is not \"ok\"")
var SessionClosedError = errors.New("session closed")
var InactiveSessionError = errors.New("inactive session")
