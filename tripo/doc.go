// Package tripo is a client for the Tripo 3D generation API. It covers the
// whole job lifecycle: image upload, task creation, status polling with
// progress callbacks, and artifact download.
//
// The three pipelines share a uniform option set:
//
//	client, err := tripo.NewClient(tripo.Config{}, logger) // key from TRIPO_API_KEY
//	path, err := client.ImageTo3D(ctx, "photo.png", "out/model.glb",
//	    tripo.DefaultOptions(), tripo.ProgressFunc(func(p int, s tripo.TaskStatus) {
//	        fmt.Printf("%d%% %s\n", p, s)
//	    }))
//
// Every remote response is wrapped in a {code, message, data} envelope;
// code == 0 is the only success signal. All failures surface as *Error with
// a classifying ErrorCode; nothing is retried by the client.
//
// A Client runs one job at a time. Front-ends that need concurrency run one
// pipeline per worker goroutine with its own Client and deliver progress
// through their own channels; see the web package.
package tripo
