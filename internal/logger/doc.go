// Package logger configures zerolog for the jobfeat commands and tests.
package logger
