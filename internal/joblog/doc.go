// Package joblog saves job logs to a local folder.
//
// Every settled job that exposes a "log" link gets one plain text file named
// {flow}_{location}_{timestamp}.log, where every non-word character of the
// location is replaced with "_". Names never collide: the file is created
// exclusively and a fresh timestamp is taken when the name is already taken.
package joblog
