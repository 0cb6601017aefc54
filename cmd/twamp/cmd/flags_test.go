/*
Copyright (c) Facebook, Inc. and its affiliates.

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

package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTOSFromDSCPName(t *testing.T) {
	f := testFlags{dscp: "ef"}
	v, err := f.resolveTOS()
	require.NoError(t, err)
	require.Equal(t, 46<<2, v)
}

func TestResolveTOSFromHex(t *testing.T) {
	f := testFlags{tos: "0xB8"}
	v, err := f.resolveTOS()
	require.NoError(t, err)
	require.Equal(t, 0xB8, v)
}

func TestResolveTOSUnknownDSCPName(t *testing.T) {
	f := testFlags{dscp: "bogus"}
	_, err := f.resolveTOS()
	require.Error(t, err)
}

func TestResolveTOSDefaultsToZero(t *testing.T) {
	f := testFlags{}
	v, err := f.resolveTOS()
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestValidateRejectsOutOfRangeFlags(t *testing.T) {
	f := testFlags{ttl: 64, count: 100, intervalMs: 100}
	require.NoError(t, f.validate())

	f.ttl = 0
	require.Error(t, f.validate())

	f = testFlags{ttl: 64, count: 10000, intervalMs: 100}
	require.Error(t, f.validate())

	f = testFlags{ttl: 64, count: 100, intervalMs: 50}
	require.Error(t, f.validate())
}

func TestParseAddrWrapsNetaddrErrors(t *testing.T) {
	_, err := parseAddr("10.0.0.1:notaport", 0)
	require.Error(t, err)
}
