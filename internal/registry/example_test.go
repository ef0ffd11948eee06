package registry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/topicbatch/internal/accumulator"
	"github.com/JakeFAU/topicbatch/internal/pusher/memory"
	"github.com/JakeFAU/topicbatch/internal/registry"
)

type pageView struct {
	Path string `json:"path"`
}

func Example() {
	pusher := memory.New()
	r, err := registry.New(registry.Config{
		Accumulator: accumulator.Config{Size: 2, Timeout: time.Minute},
	}, pusher)
	if err != nil {
		panic(err)
	}

	views, err := registry.JSONSender[pageView](r, "page-views")
	if err != nil {
		panic(err)
	}
	for _, path := range []string{"/", "/about", "/pricing"} {
		if err := views.Send(context.Background(), pageView{Path: path}); err != nil {
			panic(err)
		}
	}
	if err := r.ShutdownAll(context.Background()); err != nil {
		panic(err)
	}

	for _, b := range pusher.ByTopic("page-views") {
		fmt.Println(b.Reason, b.Len())
	}
	// Output:
	// size 2
	// shutdown 1
}
