/*
Package log provides structured logging for the monitor agent, built on
zerolog. Init configures the global logger once at process start; packages
then derive child loggers with WithComponent to tag their output.
*/
package log
