package channel

import "testing"

func BenchmarkHub_Publish(b *testing.B) {
	for _, n := range []int{1, 8, 64} {
		b.Run(benchName(n), func(b *testing.B) {
			hub := NewHub(HubConfig{Buffer: 1024})
			defer hub.Close()
			for i := 0; i < n; i++ {
				s, err := hub.Subscribe()
				if err != nil {
					b.Fatal(err)
				}
				go func() {
					for range s.Events() {
					}
				}()
			}
			ev := event(1)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				hub.Publish(ev)
			}
		})
	}
}

func benchName(n int) string {
	switch n {
	case 1:
		return "1-subscriber"
	case 8:
		return "8-subscribers"
	default:
		return "64-subscribers"
	}
}
