// Copyright 2025 UMH Systems GmbH
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

package constants

import "time"

const (
	// DefaultTickerTime is the interval between two ticks of the control loop.
	// Every tick drives the module registry once (Update on all managers).
	// - Too small: managers and state machines may not finish before the next tick
	// - Too high: state machines react slowly and elapsed-time counters get coarse
	DefaultTickerTime = 100 * time.Millisecond

	// StarvationThreshold defines when the control loop is considered starved.
	// If no tick has reached the starvation checker for this duration, a warning
	// is reported and the starvation metric grows.
	StarvationThreshold = 15 * time.Second

	// StarvationCheckInterval is how often the starvation checker wakes up.
	StarvationCheckInterval = time.Second

	// DefaultShutdownTimeout bounds the time the registry gets to shut down all
	// managers after the control loop was cancelled.
	DefaultShutdownTimeout = 3 * time.Second

	// TickOverrunFactor is the multiple of the ticker time after which an
	// overrunning tick is logged as an error instead of a warning.
	TickOverrunFactor = 2
)
