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

package lifecycle_test

import (
	"context"

	"github.com/looplab/fsm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/fsmkit/internal/lifecycle"
)

var _ = Describe("Machine", func() {
	var (
		m       *lifecycle.Machine
		entered []string
	)

	BeforeEach(func() {
		entered = nil
		m = lifecycle.New("test", "off", []fsm.EventDesc{
			{Name: "start", Src: []string{"off"}, Dst: "on"},
			{Name: "stop", Src: []string{"on"}, Dst: "off"},
		}, zaptest.NewLogger(GinkgoT()).Sugar())

		m.AddCallback("enter_on", func(ctx context.Context, e *fsm.Event) {
			entered = append(entered, e.Dst)
		})
	})

	It("starts in the initial state", func() {
		Expect(m.Current()).To(Equal("off"))
		Expect(m.Is("off")).To(BeTrue())
		Expect(m.Can("start")).To(BeTrue())
		Expect(m.Can("stop")).To(BeFalse())
	})

	It("runs enter callbacks on transitions", func() {
		Expect(m.SendEvent(context.Background(), "start")).To(Succeed())
		Expect(m.Current()).To(Equal("on"))
		Expect(entered).To(Equal([]string{"on"}))

		Expect(m.Fire("stop")).To(Succeed())
		Expect(m.Current()).To(Equal("off"))
		Expect(entered).To(HaveLen(1))
	})

	It("rejects events that are not allowed in the current state", func() {
		err := m.Fire("stop")
		Expect(err).To(MatchError(lifecycle.ErrInvalidEvent))
		Expect(m.Current()).To(Equal("off"))
	})

	It("rejects unknown events", func() {
		Expect(m.Fire("explode")).To(MatchError(lifecycle.ErrInvalidEvent))
	})

	It("refuses to transition on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(m.SendEvent(ctx, "start")).To(MatchError(context.Canceled))
		Expect(m.Current()).To(Equal("off"))
	})

	It("can be forced into a state", func() {
		m.SetState("on")
		Expect(m.Current()).To(Equal("on"))
		Expect(entered).To(BeEmpty())
	})
})
