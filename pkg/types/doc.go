/*
Package types holds Burrow's shared data model: files, file locations
(plain and proxied), tasks, standard jobs, compute resource grants and the
service lifecycle states. Locations have structural equality so they work
as map keys throughout the storage and compute services.
*/
package types
