package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseFullMethod returns action and resource for a gRPC full method (e.g. /auth.v1.DeviceService/Identify).
// Action is the lowercased method name with a known verb prefix collapsed (IssueDeviceCredential -> issue).
// Resource is derived from the service name (e.g. DeviceService -> device).
func ParseFullMethod(fullMethod string) ActionResource {
	// fullMethod format: /package.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(beforeSlash[dot+1:])}
}

func serviceToResource(serviceName string) string {
	// AuthService -> auth, DeviceService -> device
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

func methodToAction(method string) string {
	for _, verb := range []string{"Get", "List", "Issue", "Revoke", "Register", "Federated"} {
		if strings.HasPrefix(method, verb) && method != verb {
			return strings.ToLower(verb)
		}
	}
	return strings.ToLower(method)
}
