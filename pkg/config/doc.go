// Package config loads recordflow job files.
//
// A job file declares the controller services shared by the job and the
// streams that process records:
//
//	version: "1.0"
//	name: firewall-enrichment
//	engine:
//	  batch_size: 500
//	controller_services:
//	  - identifier: lookup_cache
//	    class: service.cache.lru
//	    configuration:
//	      cache.size: "1024"
//	streams:
//	  - name: main
//	    processors:
//	      - name: add_owner
//	        class: processor.add_fields
//	        configuration:
//	          owner: ${team:-ops}
//
// # Environment Variable Substitution
//
// Before parsing, ${NAME} is replaced with the value of the environment
// variable NAME when it is set. References to unset variables, and anything
// that is not a plain variable name such as ${team:-ops}, are left as
// written so that property expressions reach the processors untouched.
//
// # Usage
//
//	job, err := config.LoadJob("job.yml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	registry := controller.NewRegistry(job.ServiceConfigurations())
package config
