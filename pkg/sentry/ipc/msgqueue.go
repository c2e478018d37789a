// Copyright 2024 The axeberg Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ipc

import "errors"

// Errors returned by message-queue operations.
var (
	ErrMsgInvalidType = errors.New("msgqueue: invalid message type")
	ErrMsgQueueFull   = errors.New("msgqueue: full")
	ErrMsgNone        = errors.New("msgqueue: no matching message")
	ErrMsgNotFound    = errors.New("msgqueue: not found")
)

// MsgQueueID identifies a message queue within a MsgQueueManager.
type MsgQueueID uint32

// Message is a single typed, byte-valued queue entry. Type must be > 0 to
// be sent; 0 and negative values are reserved for receive-side filters.
type Message struct {
	Type int64
	Data []byte
}

// MsgQueueStats mirrors the System-V msgctl(IPC_STAT) fields callers care
// about.
type MsgQueueStats struct {
	Count      int
	MaxBytes   int
	UsedBytes  int
	Sent, Recv uint64
	STime      int64
	RTime      int64
}

// DefaultMaxBytes is the byte capacity a new queue gets absent an
// explicit SetMaxBytes call.
const DefaultMaxBytes = 16 * 1024

// MessageQueue is a single System-V-style message queue: an ordered list
// of typed messages bounded by total byte size.
type MessageQueue struct {
	ID       MsgQueueID
	UID, GID uint32

	messages  []Message
	maxBytes  int
	curBytes  int
	sent      uint64
	recv      uint64
	stime     int64
	rtime     int64
}

// NewMessageQueue creates an empty queue with the default capacity.
func NewMessageQueue(id MsgQueueID, uid, gid uint32) *MessageQueue {
	return &MessageQueue{ID: id, UID: uid, GID: gid, maxBytes: DefaultMaxBytes}
}

// SetMaxBytes overrides the queue's byte capacity.
func (q *MessageQueue) SetMaxBytes(max int) { q.maxBytes = max }

// Send enqueues msg at now (a monotonic timestamp), failing InvalidType
// for Type <= 0 or QueueFull if the new total would exceed capacity.
func (q *MessageQueue) Send(msg Message, now int64) error {
	if msg.Type <= 0 {
		return ErrMsgInvalidType
	}
	if q.curBytes+len(msg.Data) > q.maxBytes {
		return ErrMsgQueueFull
	}
	q.curBytes += len(msg.Data)
	q.messages = append(q.messages, msg)
	q.stime = now
	q.sent++
	return nil
}

// Receive dequeues the first message matching mtype's filter semantics:
// mtype == 0 takes the oldest message of any type; mtype > 0 requires an
// exact match; mtype < 0 matches the oldest message with Type <= |mtype|.
func (q *MessageQueue) Receive(mtype int64, now int64) (Message, error) {
	idx := -1
	switch {
	case mtype == 0:
		if len(q.messages) > 0 {
			idx = 0
		}
	case mtype > 0:
		for i, m := range q.messages {
			if m.Type == mtype {
				idx = i
				break
			}
		}
	default:
		abs := -mtype
		for i, m := range q.messages {
			if m.Type <= abs {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return Message{}, ErrMsgNone
	}
	msg := q.messages[idx]
	q.messages = append(q.messages[:idx:idx], q.messages[idx+1:]...)
	q.curBytes -= len(msg.Data)
	q.rtime = now
	q.recv++
	return msg, nil
}

// Peek returns the message Receive(mtype, ...) would dequeue, without
// removing it.
func (q *MessageQueue) Peek(mtype int64) (Message, bool) {
	switch {
	case mtype == 0:
		if len(q.messages) == 0 {
			return Message{}, false
		}
		return q.messages[0], true
	case mtype > 0:
		for _, m := range q.messages {
			if m.Type == mtype {
				return m, true
			}
		}
	default:
		abs := -mtype
		for _, m := range q.messages {
			if m.Type <= abs {
				return m, true
			}
		}
	}
	return Message{}, false
}

// Stats returns a snapshot of the queue's counters for ctl introspection.
func (q *MessageQueue) Stats() MsgQueueStats {
	return MsgQueueStats{
		Count:     len(q.messages),
		MaxBytes:  q.maxBytes,
		UsedBytes: q.curBytes,
		Sent:      q.sent,
		Recv:      q.recv,
		STime:     q.stime,
		RTime:     q.rtime,
	}
}

// MsgQueueManager owns every message queue in the system, keyed by id,
// with an optional key->id mapping for non-private queues.
type MsgQueueManager struct {
	queues map[MsgQueueID]*MessageQueue
	keyMap map[int32]MsgQueueID
	nextID uint32
}

// NewMsgQueueManager creates an empty manager.
func NewMsgQueueManager() *MsgQueueManager {
	return &MsgQueueManager{
		queues: make(map[MsgQueueID]*MessageQueue),
		keyMap: make(map[int32]MsgQueueID),
		nextID: 1,
	}
}

// Msgget resolves key to a queue id, creating one if key < 0 (always a
// fresh private queue) or if create is set and key is not yet mapped.
func (m *MsgQueueManager) Msgget(key int32, uid, gid uint32, create bool) (MsgQueueID, error) {
	if key < 0 {
		return m.newQueue(uid, gid, nil), nil
	}
	if id, ok := m.keyMap[key]; ok {
		return id, nil
	}
	if !create {
		return 0, ErrMsgNotFound
	}
	return m.newQueue(uid, gid, &key), nil
}

func (m *MsgQueueManager) newQueue(uid, gid uint32, key *int32) MsgQueueID {
	id := MsgQueueID(m.nextID)
	m.nextID++
	m.queues[id] = NewMessageQueue(id, uid, gid)
	if key != nil {
		m.keyMap[*key] = id
	}
	return id
}

// Msgsnd sends msg through the queue named by id.
func (m *MsgQueueManager) Msgsnd(id MsgQueueID, msg Message, now int64) error {
	q, ok := m.queues[id]
	if !ok {
		return ErrMsgNotFound
	}
	return q.Send(msg, now)
}

// Msgrcv receives from the queue named by id.
func (m *MsgQueueManager) Msgrcv(id MsgQueueID, mtype int64, now int64) (Message, error) {
	q, ok := m.queues[id]
	if !ok {
		return Message{}, ErrMsgNotFound
	}
	return q.Receive(mtype, now)
}

// MsgctlStat returns id's stats snapshot.
func (m *MsgQueueManager) MsgctlStat(id MsgQueueID) (MsgQueueStats, error) {
	q, ok := m.queues[id]
	if !ok {
		return MsgQueueStats{}, ErrMsgNotFound
	}
	return q.Stats(), nil
}

// MsgctlRmid destroys the queue named by id and removes any key mapping.
func (m *MsgQueueManager) MsgctlRmid(id MsgQueueID) error {
	if _, ok := m.queues[id]; !ok {
		return ErrMsgNotFound
	}
	delete(m.queues, id)
	for k, v := range m.keyMap {
		if v == id {
			delete(m.keyMap, k)
		}
	}
	return nil
}

// List returns every live queue id.
func (m *MsgQueueManager) List() []MsgQueueID {
	out := make([]MsgQueueID, 0, len(m.queues))
	for id := range m.queues {
		out = append(out, id)
	}
	return out
}
