package config

// Version is stamped into generated file headers and into cache fingerprints,
// so a generator upgrade invalidates every cached dispatch function.
const Version = "0.5.0"

// Default file names
const (
	ConfigFileName    = "bindgen.yaml"
	ConfigFileNameAlt = "bindgen.yml"
	APIFileName       = "api.yaml"
	CacheDirName      = ".bindgen"
	CacheFileName     = "dispatch.db"
)

// Runtime support library surface used by generated code.
const (
	RuntimeNamespace = "Bridge"
	RuntimeHeader    = "bridge.h"
	HostHeader       = "Python.h"
)

// Generated identifiers
const (
	WrapperPrefix      = "Wrapper_"
	ErrorLabelSuffix   = "_TypeError"
	ConstructorSuffix  = "_Init"
	SelfVarName        = "cppSelf"
	ResultVarName      = "cppResult"
	HostResultVarName  = "pyResult"
	HostArgsVarName    = "pyArgs"
	ArgTempPrefix      = "cppArg"
	RemovedTempPrefix  = "removed_cppArg"
	OverloadIDVarName  = "overloadId"
	NumArgsVarName     = "numArgs"
	ReverseFlagVarName = "isReverse"
	HasSelfVarName     = "hasSelf"
)

// Host token used for null pointers in rendered signatures.
const HostNullToken = "None"
