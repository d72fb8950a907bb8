// quotereel-jobs is the out-of-process trigger for the render queue: one
// bounded worker pass, one reclaim pass, or ad-hoc enqueue/status, intended to
// be invoked from cron or by an operator. Overlapping invocations are safe;
// coordination happens entirely in the job store.
package main

import (
	"log"

	"quotereel/internal/domain/repository"
	"quotereel/internal/platform/config"
	"quotereel/internal/platform/database"
)

func main() {
	config.Load()
	database.Connect()
	defer database.Close()

	jobRepo := repository.NewPgRenderJobRepository(database.DB)

	if err := Execute(jobRepo); err != nil {
		log.Fatal(err)
	}
}
