package videoroom

// Absent optional fields are omitted from the body rather than sent as null.

func createJoinAndConfigureRequest(room interface{}, displayName, roomPin string, relayAudio, relayVideo bool) map[string]interface{} {
	body := map[string]interface{}{
		"request": "joinandconfigure",
		"room":    room,
		"ptype":   "publisher",
		"display": displayName,
		"audio":   relayAudio,
		"video":   relayVideo,
		"data":    false,
	}
	if roomPin != "" {
		body["pin"] = roomPin
	}
	return body
}

func createConfigureRequest(audio, video bool, roomPin string) map[string]interface{} {
	body := map[string]interface{}{
		"request": "configure",
		"video":   video,
		"audio":   audio,
	}
	if roomPin != "" {
		body["pin"] = roomPin
	}
	return body
}
