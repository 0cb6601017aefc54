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

package endpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twampy/twamp-go/internal/netaddr"
)

func TestSendRecvLoopback(t *testing.T) {
	recv, err := Listen("127.0.0.1", 0, netaddr.IPv4, Options{TOS: 0x88, TTL: 64})
	require.NoError(t, err)
	defer recv.Close()

	send, err := Listen("127.0.0.1", 0, netaddr.IPv4, Options{TOS: 0, TTL: 64})
	require.NoError(t, err)
	defer send.Close()

	msg := []byte("hello twamp")
	require.NoError(t, send.SendTo(msg, recv.LocalAddr()))

	buf := make([]byte, RecvBufSize)
	n, _, err := recv.RecvFrom(buf)
	require.NoError(t, err)
	require.Equal(t, msg, buf[:n])
}

func TestCloseUnblocksRecv(t *testing.T) {
	ep, err := Listen("127.0.0.1", 0, netaddr.IPv4, Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, RecvBufSize)
		_, _, err := ep.RecvFrom(buf)
		done <- err
	}()

	require.NoError(t, ep.Close())
	err = <-done
	require.Error(t, err)
	require.True(t, IsClosedError(err))
	require.False(t, ep.Running())
}
