// Command fanlink-ctl talks to a FanLink device over TCP or WebSocket.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
