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

// Package twampwire encodes and decodes the unauthenticated TWAMP-Light
// test packets exchanged between Session Sender and Session Reflector
// (RFC 5357 §4.1/§4.2), and holds the padding-size policy shared by both.
package twampwire

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/twampy/twamp-go/internal/ntptime"
)

// Sizes, in bytes, of the fixed-length portions of the wire formats.
const (
	// RequestHeaderSize is the length of the header a sender probe always
	// carries: sequence number, T1 timestamp, error estimate.
	RequestHeaderSize = 14
	// MinRequestSize is the minimum a reflector will accept.
	MinRequestSize = RequestHeaderSize
	// ReplyHeaderSize is the length of a reflector reply before the echoed
	// sender header and any padding.
	ReplyHeaderSize = 28
	// MinReplySize is ReplyHeaderSize plus the echoed 14-byte sender header.
	MinReplySize = ReplyHeaderSize + RequestHeaderSize
	// SenderErrorEstimate is the error-estimate value a sender stamps on its
	// probes (RFC 5357 multiplier/scale/sync bits, 0x3FFF here as a fixed
	// "worst case" placeholder since this implementation has no sync source).
	SenderErrorEstimate = 0x3FFF
	// ReflectorErrorEstimate is the error-estimate value a reflector stamps
	// on its own receive/send timestamps.
	ReflectorErrorEstimate = 0x0001
)

// Request is a decoded sender probe, as received by the reflector.
type Request struct {
	Sseq uint32
	T1   float64
	// Header is the raw first 14 bytes, echoed verbatim in the reply.
	Header []byte
}

// ParseRequest decodes the fixed 14-byte header of an incoming probe.
// Padding beyond the header is ignored; fewer than MinRequestSize bytes is
// an error.
func ParseRequest(data []byte) (Request, error) {
	if len(data) < MinRequestSize {
		return Request{}, fmt.Errorf("twampwire: request too short: %d bytes", len(data))
	}
	sseq := binary.BigEndian.Uint32(data[0:4])
	sec := binary.BigEndian.Uint32(data[4:8])
	frac := binary.BigEndian.Uint32(data[8:12])
	header := make([]byte, RequestHeaderSize)
	copy(header, data[:RequestHeaderSize])
	return Request{
		Sseq:   sseq,
		T1:     ntptime.FromNTP(sec, frac),
		Header: header,
	}, nil
}

// BuildRequest encodes a sender probe: sequence number, T1, error estimate,
// followed by padLen zero bytes.
func BuildRequest(idx uint32, t1 float64, padLen int) []byte {
	buf := make([]byte, RequestHeaderSize+padLen)
	binary.BigEndian.PutUint32(buf[0:4], idx)
	sec, frac := ntptime.ToNTP(t1)
	binary.BigEndian.PutUint32(buf[4:8], sec)
	binary.BigEndian.PutUint32(buf[8:12], frac)
	binary.BigEndian.PutUint16(buf[12:14], SenderErrorEstimate)
	return buf
}

// BuildReply encodes a reflector reply for rseq at receive time t2, echoing
// reqHeader (the original 14-byte sender header) and appending padLen zero
// bytes. The reflector uses t2 for both the receive and send timestamp
// slots, since it has no separate high-resolution "about to send" clock
// read in this implementation (RFC 5357 permits T2 == T3).
func BuildReply(rseq uint32, t2 float64, reqHeader []byte, padLen int) []byte {
	buf := make([]byte, ReplyHeaderSize+RequestHeaderSize+padLen)
	sec, frac := ntptime.ToNTP(t2)

	binary.BigEndian.PutUint32(buf[0:4], rseq)
	binary.BigEndian.PutUint32(buf[4:8], sec)
	binary.BigEndian.PutUint32(buf[8:12], frac)
	binary.BigEndian.PutUint16(buf[12:14], ReflectorErrorEstimate)
	binary.BigEndian.PutUint16(buf[14:16], 0) // MBZ
	binary.BigEndian.PutUint32(buf[16:20], sec)
	binary.BigEndian.PutUint32(buf[20:24], frac)
	copy(buf[24:24+RequestHeaderSize], reqHeader)
	return buf
}

// Reply is a decoded reflector reply, as received by the sender.
type Reply struct {
	Rseq uint32
	T3   float64
	T2   float64
	Sseq uint32
	T1   float64
}

// ParseReply decodes a reflector reply. Packets shorter than MinReplySize
// are rejected; the caller is expected to log and drop them.
func ParseReply(data []byte) (Reply, error) {
	if len(data) < MinReplySize {
		return Reply{}, fmt.Errorf("twampwire: reply too short: %d bytes", len(data))
	}
	rseq := binary.BigEndian.Uint32(data[0:4])
	t3Sec := binary.BigEndian.Uint32(data[4:8])
	t3Frac := binary.BigEndian.Uint32(data[8:12])
	t2Sec := binary.BigEndian.Uint32(data[16:20])
	t2Frac := binary.BigEndian.Uint32(data[20:24])
	sseq := binary.BigEndian.Uint32(data[24:28])
	t1Sec := binary.BigEndian.Uint32(data[28:32])
	t1Frac := binary.BigEndian.Uint32(data[32:36])

	return Reply{
		Rseq: rseq,
		T3:   ntptime.FromNTP(t3Sec, t3Frac),
		T2:   ntptime.FromNTP(t2Sec, t2Frac),
		Sseq: sseq,
		T1:   ntptime.FromNTP(t1Sec, t1Frac),
	}, nil
}

// DefaultPadmixIPv4 approximates an IMIX traffic distribution for IPv4
// (7 small : 4 medium : 1 large).
var DefaultPadmixIPv4 = []int{8, 8, 8, 8, 8, 8, 8, 534, 534, 534, 534, 1458}

// DefaultPadmixIPv6 is the IPv6 equivalent, accounting for the larger fixed
// header.
var DefaultPadmixIPv6 = []int{0, 0, 0, 0, 0, 0, 0, 514, 514, 514, 514, 1438}

// Padmix returns the padding-size multiset to draw from: a singleton if the
// user gave an explicit size, otherwise the IMIX default for the family.
func Padmix(explicit int, isV6 bool) []int {
	if explicit >= 0 {
		return []int{explicit}
	}
	if isV6 {
		return DefaultPadmixIPv6
	}
	return DefaultPadmixIPv4
}

// PickPadding draws one padding size uniformly at random from mix.
func PickPadding(mix []int) int {
	if len(mix) == 1 {
		return mix[0]
	}
	return mix[rand.Intn(len(mix))] //nolint:gosec // padding size is not security sensitive
}
