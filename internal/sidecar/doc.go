// Package sidecar supervises the out-of-process recognition engine.
//
// A Supervisor runs one job at a time:
//   - Run waits on a FIFO single-flight guard and spawns a fresh engine
//     through a Launcher
//   - the running JobHandle is parked in a Slot so Cancel can reach it from
//     an unrelated goroutine, then the request frame is written in the
//     background and stdin stays open
//   - exit, frame delivery, deadline and caller cancellation are raced in a
//     select; the
//     deadline and cancellation both go through the same token, grace, kill
//     sequence
//   - the exit status and captured output are resolved into boxes or a
//     typed error, and the Slot is always empty before Run returns
//
// Example:
//
//	sup := sidecar.New(sidecar.Options{
//	    Spawner: sidecar.NewLauncher(sidecar.LauncherOptions{ResourceDir: "/opt/ocrnode"}),
//	})
//	boxes, err := sup.Run(ctx, &ipc.Request{Kind: ipc.KindPath, Data: "/tmp/shot.png"})
//	switch sidecar.Classify(err) {
//	case sidecar.OutcomeCancelled:
//	    // user aborted
//	}
package sidecar
