// Package config resolves the target a flow runs against.
//
// A target comes from a JSON or YAML config file read with viper:
//
//	{
//	  "defaultTarget": "viya",
//	  "targets": [{
//	    "name": "viya",
//	    "serverUrl": "https://viya.example.com",
//	    "serverType": "SASVIYA",
//	    "appLoc": "/Public/app",
//	    "tgtDeployVars": { "contextName": "SAS Job Execution compute context" }
//	  }]
//	}
//
// Lookup order: an explicit file, else the local ./sasjs/sasjsconfig.json
// merged over the global ~/.sasjsrc. The access token is read from
// ACCESS_TOKEN in the environment, .env.<target> or .env, in that order, and
// finally from authConfig.access_token in the config file.
package config
