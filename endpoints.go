package amaterasu

// Each endpoint helper returns the concrete request path and the route
// template the rate limiter keys on. Major path parameters (channel,
// guild, webhook ids) stay in the template because the server scopes
// budgets by them; minor ones (message ids and the like) are elided so
// every message under a channel shares one bucket.

func endpointGateway() (string, string) {
	return "/gateway", "/gateway"
}

func endpointChannel(channelID string) (string, string) {
	p := "/channels/" + channelID
	return p, p
}

func endpointChannelMessages(channelID string) (string, string) {
	p := "/channels/" + channelID + "/messages"
	return p, p
}

func endpointChannelMessage(channelID, messageID string) (string, string) {
	return "/channels/" + channelID + "/messages/" + messageID,
		"/channels/" + channelID + "/messages/{0}"
}

func endpointMessageReactionSelf(channelID, messageID, emoji string) (string, string) {
	return "/channels/" + channelID + "/messages/" + messageID + "/reactions/" + emoji + "/@me",
		"/channels/" + channelID + "/messages/{0}/reactions/{1}/@me"
}

func endpointChannelTyping(channelID string) (string, string) {
	p := "/channels/" + channelID + "/typing"
	return p, p
}

func endpointApplicationCommands(applicationID string) (string, string) {
	p := "/applications/" + applicationID + "/commands"
	return p, p
}

func endpointApplicationCommand(applicationID, commandID string) (string, string) {
	return "/applications/" + applicationID + "/commands/" + commandID,
		"/applications/" + applicationID + "/commands/{0}"
}
