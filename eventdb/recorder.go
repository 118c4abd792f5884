// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package eventdb

// Event is one protocol event as emitted by an engine.
type Event struct {
	ID        uint64            `json:"id"`
	Time      uint64            `json:"time"`
	Component string            `json:"component"`
	Action    string            `json:"action"`
	Attrs     map[string]string `json:"attrs"`
}

// Recorder accepts protocol events. Engines call it on every
// state-changing operation; failures of the recorder do not abort the
// operation itself.
type Recorder interface {
	Record(now uint64, component, action string, attrs map[string]string)
}

type noopRecorder struct{}

func (noopRecorder) Record(uint64, string, string, map[string]string) {}

// Noop returns a recorder that drops everything.
func Noop() Recorder {
	return noopRecorder{}
}
