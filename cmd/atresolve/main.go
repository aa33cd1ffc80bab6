// Command atresolve resolves AT Protocol identities and reads repository
// records through a shared TTL cache.
package main

import "github.com/IvanBrykalov/atresolve/internal/cli"

func main() {
	cli.Execute()
}
