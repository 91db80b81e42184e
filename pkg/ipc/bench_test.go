package ipc

import (
	"testing"
)

// BenchmarkCallFrame benchmarks call frame encoding and decoding
func BenchmarkCallFrame(b *testing.B) {
	testCases := []struct {
		name string
		args []Value
	}{
		{"NoArgs", nil},
		{"Ints", []Value{Int32(2), Int32(3)}},
		{"Mixed", []Value{String("Hello, World! This is a test message."), Double(1.5), UInt64(42)}},
		{"Binary64KB", []Value{Binary(make([]byte, 64*1024))}},
	}

	for _, tc := range testCases {
		msg := &CallMessage{
			ID:       1,
			Class:    "math",
			Function: "add",
			Args:     tc.args,
		}

		b.Run(tc.name+"/Encode", func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = msg.Frame()
			}
		})

		b.Run(tc.name+"/Decode", func(b *testing.B) {
			payload := msg.Frame()[FrameHeaderSize:]

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := DecodeCall(payload); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCallSync benchmarks a full round trip over a unix socket
func BenchmarkCallSync(b *testing.B) {
	path := testPipePath()

	server := NewServer(ServerConfig{})
	if err := server.RegisterCollection(newMathCollection(nil)); err != nil {
		b.Fatal(err)
	}
	if err := server.Initialize(path); err != nil {
		b.Fatal(err)
	}
	defer server.Finalize()

	client, err := NewClient(ClientConfig{
		Path:         path,
		OnDisconnect: func() {},
	})
	if err != nil {
		b.Fatal(err)
	}
	defer client.Stop()

	args := []Value{Int32(2), Int32(3)}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := client.CallSync("math", "add", args); err != nil {
			b.Fatal(err)
		}
	}
}
