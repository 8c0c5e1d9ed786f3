// Package config loads service configuration from a .env file and the
// process environment.
//
// Values are resolved in this order (later wins):
//
//	.env                 in the working directory (dotenv syntax)
//	.env.<APP_ENV>       when APP_ENV is set
//	environment          every key, via AutomaticEnv
//
// A missing .env file is not an error; it is reported through the logger.
package config
