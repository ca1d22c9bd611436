package bench

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/yyyoichi/svdlab/internal/patch"
)

func BenchmarkBlockMap(b *testing.B) {
	for _, size := range [][2]int{{1280, 720}, {1920, 1080}} {
		w, h := size[0], size[1]
		src := make([]float64, w*h)
		for i := range src {
			src[i] = rand.Float64()
		}
		for _, ps := range []int{4, 8, 16} {
			bm := patch.NewBlockMap(w, h, ps)
			b.Run(fmt.Sprintf("%dx%d_%dpx", w, h, ps), func(b *testing.B) {
				for b.Loop() {
					_ = bm.Scatter(bm.Gather(src))
				}
			})
		}
	}
}
