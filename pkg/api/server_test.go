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

package api_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	json "github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/fsmkit/pkg/api"
	"github.com/united-manufacturing-hub/fsmkit/pkg/fsm"
)

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

var _ = Describe("Server", func() {
	var (
		snapshots *fsm.SnapshotManager
		handler   http.Handler
	)

	BeforeEach(func() {
		snapshots = fsm.NewSnapshotManager()
		handler = api.NewServer(snapshots).Handler()
	})

	Context("before the first run", func() {
		It("reports unavailable", func() {
			rec := get(handler, "/health")
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

			var health api.HealthResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &health)).To(Succeed())
			Expect(health.Status).To(Equal("unavailable"))
		})

		It("lists no machines", func() {
			rec := get(handler, "/fsm")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var snapshot fsm.RegistrySnapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snapshot)).To(Succeed())
			Expect(snapshot.Machines).To(BeEmpty())
		})
	})

	Context("with a published snapshot", func() {
		BeforeEach(func() {
			snapshots.UpdateSnapshot(&fsm.RegistrySnapshot{
				Name:         fsm.DefaultRegistryName,
				RunID:        "run-1",
				Phase:        "runtime",
				Tick:         42,
				SnapshotTime: time.Now(),
				Machines: []fsm.MachineSnapshot{
					{
						OwnerType:        "game.player",
						Name:             "hero",
						FullName:         "game.player.hero",
						CurrentState:     "idle",
						CurrentStateTime: 1500 * time.Millisecond,
						Running:          true,
						States:           []string{"idle", "walk"},
						DataKeys:         []string{"hp"},
					},
				},
			})
		})

		It("reports healthy", func() {
			rec := get(handler, "/health")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var health api.HealthResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &health)).To(Succeed())
			Expect(health.Status).To(Equal("ok"))
			Expect(health.Phase).To(Equal("runtime"))
			Expect(health.RunID).To(Equal("run-1"))
			Expect(health.Tick).To(Equal(uint64(42)))
			Expect(health.Machines).To(Equal(1))
		})

		It("lists all machines", func() {
			rec := get(handler, "/fsm")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("application/json"))

			var snapshot fsm.RegistrySnapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snapshot)).To(Succeed())
			Expect(snapshot.Tick).To(Equal(uint64(42)))
			Expect(snapshot.Machines).To(HaveLen(1))
			Expect(snapshot.Machines[0].FullName).To(Equal("game.player.hero"))
		})

		It("returns a single machine", func() {
			rec := get(handler, "/fsm/game.player/hero")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var machine fsm.MachineSnapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &machine)).To(Succeed())
			Expect(machine.CurrentState).To(Equal("idle"))
			Expect(machine.CurrentStateTime).To(Equal(1500 * time.Millisecond))
			Expect(machine.States).To(Equal([]string{"idle", "walk"}))
		})

		It("returns 404 for an unknown machine", func() {
			rec := get(handler, "/fsm/game.player/villain")
			Expect(rec.Code).To(Equal(http.StatusNotFound))

			var body api.ErrorResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Error).To(ContainSubstring("villain"))
		})
	})
})
