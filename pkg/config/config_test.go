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

package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/fsmkit/pkg/config"
	"github.com/united-manufacturing-hub/fsmkit/pkg/constants"
)

func setenv(key, value string) {
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(os.Unsetenv, key)
}

var _ = Describe("Config", func() {
	Describe("Load", func() {
		It("returns the defaults when the file does not exist", func() {
			cfg, err := config.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.Default()))
		})

		It("reads the priority list and timings from YAML", func() {
			path := filepath.Join(GinkgoT().TempDir(), "config.yaml")
			Expect(os.WriteFile(path, []byte(`
agent:
  metricsPort: 9100
runtime:
  modules: [starvation_checker, fsm]
  tickInterval: 250ms
`), 0o600)).To(Succeed())

			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Agent.MetricsPort).To(Equal(9100))
			Expect(cfg.Agent.APIPort).To(Equal(constants.DefaultAPIPort))
			Expect(cfg.Runtime.Modules).To(Equal([]string{"starvation_checker", "fsm"}))
			Expect(cfg.Runtime.TickInterval).To(Equal(250 * time.Millisecond))
			Expect(cfg.Runtime.StarvationThreshold).To(Equal(constants.StarvationThreshold))
		})

		It("rejects malformed YAML", func() {
			_, err := config.Parse([]byte("runtime: [unterminated"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("environment overrides", func() {
		It("override the file values", func() {
			setenv("MODULES", "fsm,audio")
			setenv("TICK_INTERVAL", "50ms")
			setenv("API_PORT", "0")

			cfg, err := config.Parse([]byte("runtime:\n  modules: [fsm]\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Runtime.Modules).To(Equal([]string{"fsm", "audio"}))
			Expect(cfg.Runtime.TickInterval).To(Equal(50 * time.Millisecond))
			Expect(cfg.Agent.APIPort).To(Equal(0))
		})

		It("fail on unparsable values", func() {
			setenv("TICK_INTERVAL", "soon")
			_, err := config.Parse(nil)
			Expect(err).To(MatchError(ContainSubstring("parse env")))
		})
	})

	Describe("Validate", func() {
		It("rejects an empty priority list", func() {
			cfg := config.Default()
			cfg.Runtime.Modules = nil
			Expect(cfg.Validate()).To(MatchError(config.ErrNoModules))
		})

		It("rejects a non-positive tick interval", func() {
			cfg := config.Default()
			cfg.Runtime.TickInterval = 0
			Expect(cfg.Validate()).To(MatchError(config.ErrInvalidTickInterval))
		})

		It("rejects ports out of range", func() {
			cfg := config.Default()
			cfg.Agent.MetricsPort = 70000
			Expect(cfg.Validate()).To(MatchError(config.ErrInvalidPort))
		})

		It("keeps duplicate kinds", func() {
			cfg := config.Default()
			cfg.Runtime.Modules = []string{"fsm", "fsm"}
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Describe("Clone", func() {
		It("does not share the priority list", func() {
			cfg := config.Default()
			clone, err := cfg.Clone()
			Expect(err).NotTo(HaveOccurred())
			clone.Runtime.Modules[0] = "changed"
			Expect(cfg.Runtime.Modules[0]).To(Equal("fsm"))
			Expect(clone.Agent).To(Equal(cfg.Agent))
		})

		It("copies every setting", func() {
			cfg := config.Default()
			cfg.Agent.SentryDSN = "https://key@sentry.example/1"
			cfg.Agent.Version = "1.2.3"
			cfg.Runtime.TickInterval = 250 * time.Millisecond

			clone, err := cfg.Clone()
			Expect(err).NotTo(HaveOccurred())
			Expect(clone).To(Equal(cfg))
			Expect(clone.Hash()).To(Equal(cfg.Hash()))
		})
	})

	Describe("Hash", func() {
		It("depends on the runtime settings only", func() {
			a := config.Default()
			b := config.Default()
			b.Agent.MetricsPort = 1234
			Expect(a.Hash()).To(Equal(b.Hash()))

			b.Runtime.Modules = []string{"starvation_checker", "fsm"}
			Expect(a.Hash()).NotTo(Equal(b.Hash()))
		})
	})
})
