package api

// webhookPayload is the subset of the WhatsApp Cloud webhook envelope the
// bot cares about. One delivery can batch multiple messages.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *interactiveReply `json:"interactive,omitempty"`
}

type interactiveReply struct {
	Type      string `json:"type"`
	ListReply *struct {
		ID string `json:"id"`
	} `json:"list_reply,omitempty"`
	ButtonReply *struct {
		ID string `json:"id"`
	} `json:"button_reply,omitempty"`
}

// messages flattens the envelope into the inbound message list.
func (p *webhookPayload) messages() []inboundMessage {
	var out []inboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			out = append(out, change.Value.Messages...)
		}
	}
	return out
}

// replyID extracts the selected row id regardless of interactive reply kind.
func (r *interactiveReply) replyID() string {
	if r.ListReply != nil {
		return r.ListReply.ID
	}
	if r.ButtonReply != nil {
		return r.ButtonReply.ID
	}
	return ""
}
