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

const (
	// DefaultConfigPath is where the host binary looks for its config file
	// when CONFIG_PATH is not set.
	DefaultConfigPath = "/data/config.yaml"

	// DefaultMetricsPort is the port of the prometheus endpoint.
	DefaultMetricsPort = 8080

	// DefaultAPIPort is the port of the inspection API.
	DefaultAPIPort = 8081

	// DefaultAppVersion is the version reported by builds without ldflags.
	DefaultAppVersion = "0.0.0-dev"

	// DefaultDevelopmentEnvironment is the sentry environment for prerelease versions.
	DefaultDevelopmentEnvironment = "development"

	// DefaultProductionEnvironment is the sentry environment for release versions.
	DefaultProductionEnvironment = "production"
)
