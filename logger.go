/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package netflow

import "github.com/go-logr/logr"

// The components in this package that log (Registry, Decoder) take a
// logr.Logger at construction instead of reaching for a package-global
// logger; SamplerTable does not log and takes none. Components default to
// logr.Discard() when none is supplied, so callers that don't care about
// diagnostics never pay for them.

func logOrDiscard(l logr.Logger) logr.Logger {
	if l.GetSink() == nil {
		return logr.Discard()
	}
	return l
}

// warn logs msg through l.Error with err attached, mirroring the
// disposition table in §7: these are warnings, not fatal errors, so they never
// propagate as Go errors across a datagram boundary.
func warn(l logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	l.Error(err, msg, keysAndValues...)
}

func debugf(l logr.Logger, msg string, keysAndValues ...interface{}) {
	l.V(1).Info(msg, keysAndValues...)
}
