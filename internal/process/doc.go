// Package process supervises a single transcoder subprocess for one leg of
// a streaming session (main audio/video or return audio).
//
// A Supervisor moves through an explicit state machine:
//
//	Spawning → Running → Exited
//
// and exposes two futures for callers that need to wait on it:
//
//   - FirstOutput is closed when the first diagnostic line arrives, or when
//     the process exits without producing one.
//   - Done is closed once the process has exited and its exit status is known.
//
// Standard output is read as -progress key=value blocks. The first block
// with a positive frame count marks the stream as started. Standard error
// is read line by line: lines tagged [panic], [fatal] or [error] are always
// logged as errors, everything else only in debug mode.
//
// Exit handling distinguishes between an exit requested through Stop, an
// unexpected signal (or exit code 255), and any other exit code. Only the
// last one tears the owning session down:
//
//	sup := process.New(process.Options{
//	    Executable: "ffmpeg",
//	    Args:       args.String(),
//	    SessionID:  id,
//	    Owner:      delegate,
//	    Controller: controller,
//	    OnStart:    callback,
//	})
//	sup.Start()
//	defer sup.Stop()
package process
