package network

import (
	"container/heap"
	"math/rand"

	"bftsim/config"

	"github.com/hashicorp/go-hclog"
)

// Receiver is the simulator's view of a node: delivery is a direct call into
// the recipient. Nodes hold the simulator as their outbound handle, so the
// node/network cycle is broken by this interface.
type Receiver interface {
	ID() string
	ReceiveMessage(msg *Message)
}

type queueEntry struct {
	time float64
	seq  uint64
	msg  *Message
	to   string
	from string
}

// deliveryQueue is a min-heap on (delivery time, seq). The monotonic seq
// breaks ties deterministically.
type deliveryQueue []*queueEntry

func (q deliveryQueue) Len() int { return len(q) }

func (q deliveryQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].seq < q[j].seq
}

func (q deliveryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *deliveryQueue) Push(x interface{}) {
	*q = append(*q, x.(*queueEntry))
}

func (q *deliveryQueue) Pop() interface{} {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return entry
}

type sendWindow struct {
	count       int
	windowStart float64
}

// Simulator is the virtual-time transport. Messages are delayed, dropped,
// duplicated and rate-limited under a seeded generator; every lifecycle step
// is appended to the event stream. The simulator and its nodes run on a
// single goroutine: delivery is synchronous and handlers complete atomically
// before the next message is popped.
type Simulator struct {
	nodes      map[string]Receiver
	order      []string
	queue      deliveryQueue
	seq        uint64
	now        float64
	rng        *rand.Rand
	events     []*Event
	sendCounts map[string]*sendWindow

	minDelay      float64
	maxDelay      float64
	dropRate      float64
	duplicateRate float64
	rateLimit     int

	logger hclog.Logger
}

func NewSimulator(conf config.NetworkConfig, seed int64, logger hclog.Logger) *Simulator {
	return &Simulator{
		nodes:         make(map[string]Receiver),
		sendCounts:    make(map[string]*sendWindow),
		rng:           rand.New(rand.NewSource(seed)),
		minDelay:      conf.MinDelay,
		maxDelay:      conf.MaxDelay,
		dropRate:      conf.DropRate,
		duplicateRate: conf.DuplicateRate,
		rateLimit:     conf.RateLimit,
		logger:        logger,
	}
}

// Now returns the current virtual time.
func (sim *Simulator) Now() float64 {
	return sim.now
}

// RegisterNode adds the node to the routing table. Broadcast fans out in
// registration order so a fixed seed replays the same schedule.
func (sim *Simulator) RegisterNode(node Receiver) {
	id := node.ID()
	sim.nodes[id] = node
	sim.order = append(sim.order, id)
	sim.sendCounts[id] = &sendWindow{count: 0, windowStart: sim.now}
	sim.logger.Debug("node registered", "node", id)
}

// checkRateLimit enforces the per-sender sliding window: rateLimit sends per
// simulated second, window restarting at the first send past the boundary.
func (sim *Simulator) checkRateLimit(sender string) bool {
	window, ok := sim.sendCounts[sender]
	if !ok {
		window = &sendWindow{count: 0, windowStart: sim.now}
		sim.sendCounts[sender] = window
	}
	if sim.now-window.windowStart >= 1.0 {
		window.count = 1
		window.windowStart = sim.now
		return true
	}
	if window.count >= sim.rateLimit {
		return false
	}
	window.count++
	return true
}

// Broadcast sends msg to every registered node except the sender.
func (sim *Simulator) Broadcast(sender string, msg *Message) {
	if !sim.checkRateLimit(sender) {
		sim.appendEvent("rate_limited", sender, msg, map[string]interface{}{
			"broadcast": true,
			"height":    msg.Height,
		})
		return
	}
	sim.appendEvent("send", sender, msg, map[string]interface{}{
		"broadcast": true,
		"height":    msg.Height,
	})
	for _, id := range sim.order {
		if id != sender {
			sim.deliver(sender, id, msg)
		}
	}
}

// Send unicasts msg to one recipient.
func (sim *Simulator) Send(sender, recipient string, msg *Message) {
	if !sim.checkRateLimit(sender) {
		sim.appendEvent("rate_limited", sender, msg, map[string]interface{}{
			"recipient": recipient,
			"height":    msg.Height,
		})
		return
	}
	sim.appendEvent("send", sender, msg, map[string]interface{}{
		"recipient": recipient,
		"height":    msg.Height,
	})
	sim.deliver(sender, recipient, msg)
}

// deliver schedules one copy of msg, applying drop, delay and duplication.
func (sim *Simulator) deliver(sender, recipient string, msg *Message) {
	if sim.rng.Float64() < sim.dropRate {
		sim.appendEvent("drop", recipient, msg, map[string]interface{}{
			"reason": "random_drop",
			"height": msg.Height,
		})
		sim.logger.Debug("message dropped", "msg", msg.ID, "to", recipient, "height", msg.Height)
		return
	}

	delay := sim.minDelay + sim.rng.Float64()*(sim.maxDelay-sim.minDelay)
	deliveryTime := sim.now + delay
	sim.push(deliveryTime, msg, recipient, sender)
	sim.appendEvent("delay", recipient, msg, map[string]interface{}{
		"delay":         delay,
		"delivery_time": deliveryTime,
		"height":        msg.Height,
	})

	if sim.rng.Float64() < sim.duplicateRate {
		dupDelay := delay + 0.01 + sim.rng.Float64()*0.09
		dupDeliveryTime := sim.now + dupDelay
		sim.push(dupDeliveryTime, msg, recipient, sender)
		sim.appendEvent("duplicate", recipient, msg, map[string]interface{}{
			"original_delay": delay,
			"dup_delay":      dupDelay,
			"height":         msg.Height,
		})
	}
}

func (sim *Simulator) push(deliveryTime float64, msg *Message, to, from string) {
	sim.seq++
	heap.Push(&sim.queue, &queueEntry{
		time: deliveryTime,
		seq:  sim.seq,
		msg:  msg,
		to:   to,
		from: from,
	})
}

// Step advances virtual time by dt, delivering every message due within the
// window in delivery-time order, and leaves the clock at now+dt.
func (sim *Simulator) Step(dt float64) {
	until := sim.now + dt
	for sim.queue.Len() > 0 {
		next := sim.queue[0]
		if next.time > until {
			break
		}
		entry := heap.Pop(&sim.queue).(*queueEntry)
		sim.now = entry.time
		node, ok := sim.nodes[entry.to]
		if !ok {
			continue
		}
		node.ReceiveMessage(entry.msg)
		sim.appendEvent("receive", entry.to, entry.msg, map[string]interface{}{
			"from":   entry.from,
			"height": entry.msg.Height,
		})
		sim.logger.Debug("message delivered", "to", entry.to, "type", entry.msg.Kind.String(),
			"from", entry.from, "height", entry.msg.Height)
	}
	sim.now = until
}

// Pending returns the number of undelivered scheduled messages.
func (sim *Simulator) Pending() int {
	return sim.queue.Len()
}

// Events returns the transport's event stream in insertion order.
func (sim *Simulator) Events() []*Event {
	return sim.events
}

func (sim *Simulator) appendEvent(eventType, nodeID string, msg *Message, details map[string]interface{}) {
	sim.events = append(sim.events, &Event{
		Time:    sim.now,
		Type:    eventType,
		Node:    nodeID,
		MsgType: msg.Kind.String(),
		MsgID:   msg.ID,
		Details: details,
	})
}
