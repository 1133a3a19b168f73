// cvdeck is the command line client for managing CVs and cover letters
// across local storage and connected cloud providers.
package main

func main() {
	Execute()
}
