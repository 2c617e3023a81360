// Package tasks provides the task implementations a flowrun server can
// register: the built-in sample tasks, tasks that delegate to remote HTTP
// endpoints, and sandboxed Lua script tasks
package tasks
