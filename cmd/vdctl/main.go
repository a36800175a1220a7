// Command vdctl runs the download engine daemon and provides a CLI client
// for queuing and inspecting downloads against a running instance.
package main

func main() {
	Execute()
}
