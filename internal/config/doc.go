// Package config resolves regcheck's settings and scenario suites.
//
// Settings are layered by viper, later sources overriding earlier ones:
//
//  1. Built-in defaults
//  2. User configuration (~/.config/regcheck/config.yaml)
//  3. Project configuration (./.regcheck/config.yaml), or the file passed
//     with --config
//  4. Environment variables
//  5. Command line flags
//
// Environment variables use the option names verbatim (base_url,
// filename, service_url, service_wait_timeout, ...) and also accept the
// upper-case spelling (BASE_URL, ...). The presence of integration_test
// enables gated scenarios regardless of its value.
//
// # Suite files
//
// A suite file lists scenarios in YAML:
//
//	fail_fast: true
//	scenarios:
//	  - name: registration
//	    variant: create
//	    descriptor:
//	      name: _it._tcp
//	      apis:
//	        Test API: http://test:666
//	  - name: template
//	    variant: existing
//	    template: dummy.json
//	    expected_total: 2
//
// Template paths are relative to the suite file.
package config
