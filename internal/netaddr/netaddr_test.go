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

package netaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCanonicalForms(t *testing.T) {
	cases := []struct {
		in   string
		want Addr
	}{
		{"[::1]:20001", Addr{"::1", 20001, IPv6}},
		{"[::1]", Addr{"::1", 20000, IPv6}},
		{"::1", Addr{"::1", 20000, IPv6}},
		{"10.0.0.1:20000", Addr{"10.0.0.1", 20000, IPv4}},
		{"10.0.0.1", Addr{"10.0.0.1", 20000, IPv4}},
		{"", Addr{"", 20000, Unspecified}},
	}
	for _, c := range cases {
		got, err := Parse(c.in, 20000)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseMalformedPort(t *testing.T) {
	_, err := Parse("10.0.0.1:notaport", 20000)
	assert.Error(t, err)

	_, err = Parse("[::1]:notaport", 20000)
	assert.Error(t, err)
}
