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

package fsm_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/fsmkit/pkg/fsm"
)

var _ = Describe("Machine", func() {
	var (
		j     *journal
		owner *player
		m     *fsm.Machine[*player]
	)

	BeforeEach(func() {
		j = &journal{}
		owner = &player{hp: 10}

		var err error
		m, err = fsm.NewMachine[*player]("main", owner, newS1(j), newS2(j))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("construction", func() {
		It("calls OnInit on every state in order", func() {
			Expect(j.calls).To(Equal([]string{"S1.init", "S2.init"}))
		})

		It("starts uninitialized", func() {
			Expect(m.IsRunning()).To(BeFalse())
			Expect(m.IsDestroyed()).To(BeFalse())
			Expect(m.GetCurrentState()).To(BeNil())
			Expect(m.GetCurrentStateName()).To(BeEmpty())
		})

		It("exposes its identity", func() {
			Expect(m.GetName()).To(Equal("main"))
			Expect(m.GetFullName()).To(Equal("fsm_test.player.main"))
			Expect(m.GetOwner()).To(BeIdenticalTo(owner))
			Expect(m.GetOwnerType()).To(Equal(fsm.KindOf[*player]()))
			Expect(m.StateCount()).To(Equal(2))
			Expect(m.StateNames()).To(Equal([]string{"s1", "s2"}))
			Expect(m.GetAllStates()).To(HaveLen(2))
		})

		It("uses the owner type alone as full name when the name is empty", func() {
			unnamed, err := fsm.NewMachine[*player]("", owner, newS1(j))
			Expect(err).NotTo(HaveOccurred())
			Expect(unnamed.GetFullName()).To(Equal("fsm_test.player"))
		})

		It("rejects a nil owner", func() {
			var nobody *player
			_, err := fsm.NewMachine[*player]("main", nobody, newS1(j))
			Expect(err).To(MatchError(fsm.ErrNilOwner))
		})

		It("rejects an empty state set", func() {
			_, err := fsm.NewMachine[*player]("main", owner)
			Expect(err).To(MatchError(fsm.ErrNoStates))
		})

		It("rejects nil states", func() {
			var missing *s2
			_, err := fsm.NewMachine[*player]("main", owner, fsm.State[*player](newS1(j)), missing)
			Expect(err).To(MatchError(fsm.ErrNilState))
		})

		It("rejects two states of the same kind without calling OnInit", func() {
			j2 := &journal{}
			_, err := fsm.NewMachine[*player]("main", owner, newS1(j2), newS1(j2))
			Expect(err).To(MatchError(fsm.ErrDuplicateState))
			Expect(j2.calls).To(BeEmpty())
		})

		It("works with the no-op base state", func() {
			wanderer, err := fsm.NewMachine[*npc]("w", &npc{}, &wanderState{})
			Expect(err).NotTo(HaveOccurred())
			Expect(fsm.Start[*wanderState](wanderer)).To(Succeed())
			Expect(wanderer.GetCurrentStateName()).To(Equal("wanderState"))
		})
	})

	Describe("Start", func() {
		It("enters the initial state with zero elapsed time", func() {
			Expect(fsm.Start[*s1](m)).To(Succeed())
			Expect(m.IsRunning()).To(BeTrue())
			Expect(fsm.IsInState[*s1](m)).To(BeTrue())
			Expect(m.GetCurrentStateKind()).To(Equal(fsm.KindOf[*s1]()))
			Expect(m.GetCurrentStateTime()).To(BeZero())
			Expect(j.count("S1.enter")).To(Equal(1))
		})

		It("is only valid once", func() {
			Expect(m.Start(fsm.KindOf[*s1]())).To(Succeed())
			Expect(m.Start(fsm.KindOf[*s2]())).To(MatchError(fsm.ErrInvalidTransition))
			Expect(fsm.IsInState[*s1](m)).To(BeTrue())
		})

		It("rejects kinds the machine does not own", func() {
			Expect(fsm.Start[*unused](m)).To(MatchError(fsm.ErrInvalidStateKind))
			Expect(m.IsRunning()).To(BeFalse())
			Expect(j.calls).NotTo(ContainElement(HaveSuffix(".enter")))
		})
	})

	Describe("ChangeState", func() {
		It("requires a started machine", func() {
			Expect(fsm.ChangeState[*s2](m)).To(MatchError(fsm.ErrInvalidTransition))
			Expect(m.GetCurrentState()).To(BeNil())
		})

		It("leaves the current state, enters the target and resets the timer", func() {
			Expect(fsm.Start[*s1](m)).To(Succeed())
			fsm.UpdateForTest(m, time.Second)
			Expect(m.GetCurrentStateTime()).To(Equal(time.Second))

			Expect(fsm.ChangeState[*s2](m)).To(Succeed())
			Expect(j.count("S1.leave")).To(Equal(1))
			Expect(j.count("S2.enter")).To(Equal(1))
			Expect(m.GetCurrentStateTime()).To(BeZero())
			Expect(m.GetCurrentStateName()).To(Equal("s2"))
		})

		It("runs leave and enter on a self transition", func() {
			Expect(fsm.Start[*s1](m)).To(Succeed())
			fsm.UpdateForTest(m, time.Second)

			Expect(fsm.ChangeState[*s1](m)).To(Succeed())
			Expect(j.count("S1.leave")).To(Equal(1))
			Expect(j.count("S1.enter")).To(Equal(2))
			Expect(m.GetCurrentStateTime()).To(BeZero())
		})

		It("rejects kinds the machine does not own", func() {
			Expect(fsm.Start[*s1](m)).To(Succeed())
			Expect(fsm.ChangeState[*unused](m)).To(MatchError(fsm.ErrInvalidStateKind))
			Expect(j.count("S1.leave")).To(Equal(0))
			Expect(fsm.IsInState[*s1](m)).To(BeTrue())
		})
	})

	Describe("elapsed time", func() {
		It("accumulates N*d over N updates", func() {
			Expect(fsm.Start[*s1](m)).To(Succeed())

			for range 7 {
				fsm.UpdateForTest(m, 250*time.Millisecond)
			}

			Expect(m.GetCurrentStateTime()).To(Equal(7 * 250 * time.Millisecond))
			Expect(j.count("S1.update")).To(Equal(7))
		})

		It("treats negative deltas as zero", func() {
			Expect(fsm.Start[*s1](m)).To(Succeed())
			fsm.UpdateForTest(m, time.Second)
			fsm.UpdateForTest(m, -5*time.Second)
			Expect(m.GetCurrentStateTime()).To(Equal(time.Second))
		})

		It("does not tick before Start", func() {
			fsm.UpdateForTest(m, time.Second)
			Expect(m.GetCurrentStateTime()).To(BeZero())
			Expect(j.count("S1.update")).To(Equal(0))
		})
	})

	Describe("Destroy", func() {
		It("leaves the current state with isShutdown then destroys every state", func() {
			Expect(fsm.Start[*s2](m)).To(Succeed())
			j.calls = nil

			Expect(m.Destroy()).To(Succeed())
			Expect(j.calls).To(Equal([]string{"S2.leave(shutdown)", "S1.destroy", "S2.destroy"}))
			Expect(m.IsDestroyed()).To(BeTrue())
			Expect(m.IsRunning()).To(BeFalse())
		})

		It("skips OnLeave when the machine never started", func() {
			j.calls = nil

			Expect(m.Destroy()).To(Succeed())
			Expect(j.calls).To(Equal([]string{"S1.destroy", "S2.destroy"}))
		})

		It("rejects every further operation", func() {
			Expect(m.Destroy()).To(Succeed())

			Expect(m.Destroy()).To(MatchError(fsm.ErrMachineDestroyed))
			Expect(fsm.Start[*s1](m)).To(MatchError(fsm.ErrMachineDestroyed))
			Expect(fsm.ChangeState[*s1](m)).To(MatchError(fsm.ErrMachineDestroyed))
			Expect(m.SetData("k", 1)).To(MatchError(fsm.ErrMachineDestroyed))
			_, err := fsm.GetData[int](m, "k")
			Expect(err).To(MatchError(fsm.ErrMachineDestroyed))
			Expect(m.RemoveData("k")).To(MatchError(fsm.ErrMachineDestroyed))
			Expect(m.HasData("k")).To(BeFalse())
		})

		It("refuses transitions and writes from teardown hooks", func() {
			j = &journal{}
			first := newS1(j)
			second := newS2(j)

			var changeErr, startErr, setErr error
			first.onDestroy = func(m *fsm.Machine[*player]) {
				changeErr = fsm.ChangeState[*s2](m)
				startErr = fsm.Start[*s1](m)
				setErr = m.SetData("k", 1)
			}

			var err error
			m, err = fsm.NewMachine[*player]("hooked", owner, first, second)
			Expect(err).NotTo(HaveOccurred())
			Expect(fsm.Start[*s1](m)).To(Succeed())
			j.calls = nil

			Expect(m.Destroy()).To(Succeed())
			Expect(changeErr).To(MatchError(fsm.ErrMachineDestroyed))
			Expect(startErr).To(MatchError(fsm.ErrMachineDestroyed))
			Expect(setErr).To(MatchError(fsm.ErrMachineDestroyed))
			Expect(j.calls).To(Equal([]string{"S1.leave(shutdown)", "S1.destroy", "S2.destroy"}))
			Expect(m.IsDestroyed()).To(BeTrue())
		})

		It("drops the blackboard", func() {
			Expect(m.SetData("k", 1)).To(Succeed())
			Expect(m.Destroy()).To(Succeed())
			Expect(m.DataKeys()).To(BeEmpty())
		})
	})

	Describe("blackboard", func() {
		It("round-trips typed values", func() {
			Expect(m.SetData("k", 42)).To(Succeed())

			v, err := fsm.GetData[int](m, "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(42))

			_, err = fsm.GetData[string](m, "k")
			Expect(err).To(MatchError(fsm.ErrTypeMismatch))

			Expect(m.RemoveData("k")).To(Succeed())
			Expect(m.HasData("k")).To(BeFalse())
		})

		It("reports absent keys", func() {
			_, err := fsm.GetData[int](m, "missing")
			Expect(err).To(MatchError(fsm.ErrDataNotFound))
			Expect(m.RemoveData("missing")).To(MatchError(fsm.ErrDataNotFound))
		})

		It("rejects empty keys", func() {
			Expect(m.SetData("", 1)).To(MatchError(fsm.ErrEmptyKey))
		})

		It("exposes raw values and the key count", func() {
			b := fsm.NewBlackboard()
			Expect(b.Set("hp", 7)).To(Succeed())
			Expect(b.Set("name", "hero")).To(Succeed())

			v, ok := b.Get("hp")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(7))
			Expect(b.Len()).To(Equal(2))

			_, ok = b.Get("missing")
			Expect(ok).To(BeFalse())

			Expect(b.Remove("hp")).To(BeTrue())
			Expect(b.Len()).To(Equal(1))
		})

		It("lists keys in order", func() {
			Expect(m.SetData("b", 1)).To(Succeed())
			Expect(m.SetData("a", "x")).To(Succeed())
			Expect(m.DataKeys()).To(Equal([]string{"a", "b"}))
		})
	})

	Describe("state lookup", func() {
		It("finds owned states by kind", func() {
			state, ok := fsm.GetState[*s2](m)
			Expect(ok).To(BeTrue())
			Expect(state.name).To(Equal("S2"))

			Expect(fsm.HasState[*s1](m)).To(BeTrue())
			Expect(fsm.HasState[*unused](m)).To(BeFalse())
			Expect(m.HasState(fsm.KindOf[*unused]())).To(BeFalse())

			_, ok = fsm.GetState[*unused](m)
			Expect(ok).To(BeFalse())
		})
	})
})
