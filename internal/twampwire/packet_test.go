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

package twampwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	raw := BuildRequest(42, 1700000000.25, 10)
	require.Len(t, raw, RequestHeaderSize+10)

	req, err := ParseRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), req.Sseq)
	assert.InDelta(t, 1700000000.25, req.T1, 1e-6)
	assert.Len(t, req.Header, RequestHeaderSize)
}

func TestParseRequestTooShort(t *testing.T) {
	_, err := ParseRequest(make([]byte, MinRequestSize-1))
	assert.Error(t, err)
}

func TestReplyRoundTrip(t *testing.T) {
	req := BuildRequest(7, 1700000000.5, 0)
	reqParsed, err := ParseRequest(req)
	require.NoError(t, err)

	reply := BuildReply(3, 1700000001.75, reqParsed.Header, 20)
	require.Len(t, reply, ReplyHeaderSize+RequestHeaderSize+20)

	parsed, err := ParseReply(reply)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), parsed.Rseq)
	assert.InDelta(t, 1700000001.75, parsed.T2, 1e-6)
	assert.InDelta(t, 1700000001.75, parsed.T3, 1e-6)
	assert.Equal(t, uint32(7), parsed.Sseq)
	assert.InDelta(t, 1700000000.5, parsed.T1, 1e-6)
}

func TestParseReplyTooShort(t *testing.T) {
	_, err := ParseReply(make([]byte, MinReplySize-1))
	assert.Error(t, err)
}

func TestPadmixDefaults(t *testing.T) {
	assert.Equal(t, []int{5}, Padmix(5, false))
	assert.Equal(t, DefaultPadmixIPv4, Padmix(-1, false))
	assert.Equal(t, DefaultPadmixIPv6, Padmix(-1, true))
}

func TestPickPaddingWithinMix(t *testing.T) {
	mix := []int{1, 2, 3}
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		v := PickPadding(mix)
		seen[v] = true
	}
	for v := range seen {
		assert.Contains(t, mix, v)
	}
}
