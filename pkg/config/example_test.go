package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/recordflow/pkg/config"
)

// ExampleNewJob demonstrates creating a job with default values.
func ExampleNewJob() {
	job := config.NewJob("firewall-enrichment")
	fmt.Printf("Version: %s\n", job.Version)
	fmt.Printf("Batch Size: %d\n", job.Engine.BatchSize)

	// Output:
	// Version: 1.0
	// Batch Size: 1000
}

// ExampleParse shows that property expressions survive environment
// substitution.
func ExampleParse() {
	data := []byte(`
name: demo
streams:
  - name: main
    processors:
      - class: processor.add_fields
        configuration:
          owner: ${team:-ops}
`)
	var job config.Job
	if err := config.Parse(data, &job); err != nil {
		log.Fatal(err)
	}
	fmt.Println(job.Streams[0].Processors[0].Configuration["owner"])

	// Output:
	// ${team:-ops}
}
