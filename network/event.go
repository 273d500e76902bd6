package network

// Event is one structured record of the transport's auditable event stream.
type Event struct {
	Time    float64
	Type    string
	Node    string
	MsgType string
	MsgID   string
	Details map[string]interface{}
}

// ToMap flattens the event for the deterministic log.
func (e *Event) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event":    e.Type,
		"time":     e.Time,
		"node":     e.Node,
		"msg_type": e.MsgType,
		"msg_id":   e.MsgID,
		"details":  e.Details,
	}
}
