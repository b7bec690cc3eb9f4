package blocks

import (
	"fmt"
	"math"
	"strings"

	"github.com/flavioaiello/azure-building-blocks/pkg/merge"
	"github.com/flavioaiello/azure-building-blocks/pkg/resources"
	"github.com/flavioaiello/azure-building-blocks/pkg/validation"
	"github.com/flavioaiello/azure-building-blocks/pkg/values"
)

const (
	osLinux   = "linux"
	osWindows = "windows"

	// MaxComputerNamePrefixLength is the longest computer name prefix accepted.
	MaxComputerNamePrefixLength = 7
)

var (
	vmBoundaries = resources.Boundaries(
		"virtualNetwork",
		"availabilitySet",
		"nics",
		"storageAccounts",
		"diagnosticStorageAccounts",
		"loadBalancerSettings",
		"scaleSetSettings",
		"applicationGatewaySettings",
		"publicIpAddress",
	)

	diskCaching = []string{"None", "ReadOnly", "ReadWrite"}

	createOptions = map[string]string{
		"fromImage": "FromImage",
		"attach":    "Attach",
		"empty":     "Empty",
	}

	osTypeNames = map[string]string{
		osLinux:   "Linux",
		osWindows: "Windows",
	}
)

// optionalBlock is a sub-resource merged only when the user declares it.
type optionalBlock struct {
	key    string
	suffix string
}

var optionalBlocks = []optionalBlock{
	{key: "loadBalancerSettings", suffix: "lb"},
	{key: "applicationGatewaySettings", suffix: "gw"},
	{key: "scaleSetSettings", suffix: "ss"},
}

func imageReference(osType string) map[string]interface{} {
	if osType == osWindows {
		return map[string]interface{}{
			"publisher": "MicrosoftWindowsServer",
			"offer":     "WindowsServer",
			"sku":       "2016-Datacenter",
			"version":   "latest",
		}
	}
	return map[string]interface{}{
		"publisher": "Canonical",
		"offer":     "UbuntuServer",
		"sku":       "16.04-LTS",
		"version":   "latest",
	}
}

func virtualMachineDefaults(osType string) map[string]interface{} {
	return map[string]interface{}{
		"vmCount":        1,
		"size":           "Standard_DS2_v2",
		"osType":         osType,
		"adminUsername":  "adminUser",
		"imageReference": imageReference(osType),
		"osDisk": map[string]interface{}{
			"caching":      "ReadWrite",
			"createOption": "fromImage",
		},
		"dataDisks": map[string]interface{}{
			"count": 1,
			"properties": map[string]interface{}{
				"diskSizeGB":   127,
				"caching":      "None",
				"createOption": "empty",
			},
		},
		"storageAccounts":            storageDefaults(),
		"diagnosticStorageAccounts":  diagnosticStorageDefaults(),
		"nics":                       mergeNICs([]interface{}{map[string]interface{}{}}),
		"availabilitySet":            availabilitySetDefaults(),
		"loadBalancerSettings":       loadBalancerDefaults(),
		"applicationGatewaySettings": applicationGatewayDefaults(),
		"scaleSetSettings":           scaleSetDefaults(),
		"tags":                       map[string]interface{}{},
	}
}

// embedded merges a sub-resource with its own policy.
func embedded(policy merge.Policy) merge.Rule {
	return merge.Custom(func(base, override interface{}, _ merge.Scope) interface{} {
		o, ok := override.(map[string]interface{})
		if !ok {
			return values.Clone(override)
		}
		b, _ := base.(map[string]interface{})
		return merge.Object(o, policy, b)
	})
}

func virtualMachinePolicy() merge.Policy {
	return merge.Policy{
		"imageReference": merge.Replace,
		"nics": merge.Custom(func(_, override interface{}, _ merge.Scope) interface{} {
			items, ok := override.([]interface{})
			if !ok {
				return values.Clone(override)
			}
			return mergeNICs(items)
		}),
		"loadBalancerSettings":       embedded(loadBalancerPolicy()),
		"applicationGatewaySettings": embedded(applicationGatewayPolicy()),
		"scaleSetSettings":           embedded(nil),
	}
}

// normalizeOSType lower-cases osType in settings, defaulting to linux, and
// returns the OS whose defaults apply.
func normalizeOSType(settings map[string]interface{}) string {
	raw, ok := settings["osType"]
	if !ok || raw == nil {
		settings["osType"] = osLinux
		return osLinux
	}
	s, ok := raw.(string)
	if !ok {
		return osLinux
	}
	s = strings.ToLower(strings.TrimSpace(s))
	settings["osType"] = s
	if s == osWindows {
		return osWindows
	}
	return osLinux
}

// mergeVirtualMachineObject merges one virtual machine over the OS defaults
// and the user defaults, then derives the names the user left out.
func mergeVirtualMachineObject(settings, userDefaults map[string]interface{}) map[string]interface{} {
	s := values.CloneMap(settings)
	if s == nil {
		s = map[string]interface{}{}
	}
	osType := normalizeOSType(s)

	builtin := virtualMachineDefaults(osType)
	user := values.CloneMap(userDefaults)
	for _, opt := range optionalBlocks {
		if values.Has(s, opt.key) {
			continue
		}
		delete(builtin, opt.key)
		delete(user, opt.key)
	}

	merged := merge.Object(s, virtualMachinePolicy(), builtin, user)
	prefix := values.GetString(merged, "namePrefix")

	for _, opt := range optionalBlocks {
		if sub := values.GetMap(merged, opt.key); sub != nil && validation.IsNullOrWhitespace(sub["name"]) {
			sub["name"] = fmt.Sprintf("%s-%s", prefix, opt.suffix)
		}
	}
	if validation.IsNullOrWhitespace(merged["computerNamePrefix"]) {
		cp := prefix
		if len(cp) > MaxComputerNamePrefixLength {
			cp = cp[:MaxComputerNamePrefixLength]
		}
		merged["computerNamePrefix"] = cp
	}
	if as := values.GetMap(merged, "availabilitySet"); as != nil && validation.IsNullOrWhitespace(as["name"]) &&
		!values.Has(merged, "scaleSetSettings") && values.GetInt(merged, "vmCount", 1) > 1 {
		as["name"] = fmt.Sprintf("%s-as", prefix)
	}
	return merged
}

// MergeVirtualMachine merges and places virtual machine settings. Embedded
// load balancers and application gateways share the virtual network of the
// virtual machine unless they name their own.
func MergeVirtualMachine(in Input) ([]map[string]interface{}, error) {
	items, err := objects(in.Settings)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, len(items))
	for i, item := range items {
		vm := resources.SetupObject(mergeVirtualMachineObject(item, in.Defaults), in.Context, vmBoundaries)
		for _, key := range []string{"loadBalancerSettings", "applicationGatewaySettings"} {
			if sub := values.GetMap(vm, key); sub != nil && sub["virtualNetwork"] == nil && vm["virtualNetwork"] != nil {
				sub["virtualNetwork"] = values.Clone(vm["virtualNetwork"])
			}
		}
		out[i] = vm
	}
	return out, nil
}

func authenticationRules(osType string) validation.Rules {
	return validation.Rules{
		{Field: "adminPassword", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			switch osType {
			case osWindows:
				return validation.Check(!validation.IsNullOrWhitespace(value), "adminPassword must be specified for windows")
			case osLinux:
				return validation.Check(!validation.IsNullOrWhitespace(value) || !validation.IsNullOrWhitespace(parent["sshPublicKey"]),
					"Either adminPassword or sshPublicKey must be specified")
			}
			return validation.OK()
		}},
		{Field: "sshPublicKey", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			switch osType {
			case osWindows:
				return validation.Check(value == nil, "sshPublicKey cannot be specified for windows")
			case osLinux:
				if validation.IsNullOrWhitespace(value) {
					return validation.OK()
				}
				return validation.Check(validation.IsNullOrWhitespace(parent["adminPassword"]),
					"Only one of adminPassword or sshPublicKey can be specified")
			}
			return validation.OK()
		}},
	}
}

// diskReference checks an attached disk or image reference.
func diskReference(managed bool) validation.Func {
	if managed {
		return validation.IsResourceID
	}
	return validation.IsValidURL
}

func osDiskRules(vmCount int, managed bool) validation.Rules {
	return validation.Rules{
		{Field: "caching", Check: validation.IsOneOf(diskCaching...)},
		{Field: "createOption", Check: validation.IsOneOf("fromImage", "attach")},
		{Field: "diskSizeGB", Check: validation.Optional(validation.IsInRange(1, 4095))},
		{Field: "images", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			images, _ := values.Slice(value)
			switch parent["createOption"] {
			case "fromImage":
				if value == nil {
					return validation.OK()
				}
				if managed {
					return validation.Fail("images cannot be specified for managed disks, use imageReference.id")
				}
				if len(images) != 1 {
					return validation.Fail("images must contain exactly one image when createOption is fromImage")
				}
				return validation.Recurse(validation.Func(validation.IsValidURL))
			case "attach":
				if len(images) != vmCount {
					return validation.Fail("images must contain %d entries, one per virtual machine", vmCount)
				}
				return validation.Recurse(diskReference(managed))
			}
			return validation.OK()
		}},
	}
}

func dataDiskRules(vmCount int, managed bool) validation.Rules {
	return validation.Rules{
		{Field: "count", Check: validation.IsInRange(0, 64)},
		{Field: "properties", Check: required(validation.Rules{
			{Field: "caching", Check: validation.IsOneOf(diskCaching...)},
			{Field: "createOption", Check: validation.IsOneOf("fromImage", "attach", "empty")},
			{Field: "diskSizeGB", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				if parent["createOption"] == "empty" {
					return validation.IsInRange(1, 4095)(value, parent)
				}
				return validation.Optional(validation.IsInRange(1, 4095))(value, parent)
			}},
			{Field: "images", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
				images, _ := values.Slice(value)
				switch parent["createOption"] {
				case "empty":
					return validation.Check(len(images) == 0, "images cannot be specified when createOption is empty")
				case "fromImage":
					if managed {
						return validation.Fail("fromImage data disks require unmanaged storage")
					}
					if len(images) != 1 {
						return validation.Fail("images must contain exactly one image when createOption is fromImage")
					}
					return validation.Recurse(validation.Func(validation.IsValidURL))
				case "attach":
					if len(images) != vmCount {
						return validation.Fail("images must contain %d entries, one per virtual machine", vmCount)
					}
					return validation.Recurse(diskReference(managed))
				}
				return validation.OK()
			}},
		}, "properties must be specified")},
	}
}

func imageReferenceRules(value interface{}, _ map[string]interface{}) validation.Result {
	ir, ok := value.(map[string]interface{})
	if !ok {
		return validation.Fail("imageReference must be specified")
	}
	if values.Has(ir, "id") {
		return validation.Recurse(validation.Rules{{Field: "id", Check: validation.IsResourceID}})
	}
	return validation.Recurse(validation.Rules{
		{Field: "publisher", Check: validation.NotNullOrWhitespace},
		{Field: "offer", Check: validation.NotNullOrWhitespace},
		{Field: "sku", Check: validation.NotNullOrWhitespace},
		{Field: "version", Check: validation.NotNullOrWhitespace},
	})
}

// vmNICRules resolves pool and NAT rule names against the sub-resources of vm.
func vmNICRules(vm map[string]interface{}) validation.Rules {
	lb := values.GetMap(vm, "loadBalancerSettings")
	gw := values.GetMap(vm, "applicationGatewaySettings")
	ss := values.GetMap(vm, "scaleSetSettings")

	refsTo := func(owner map[string]interface{}, key, requires string) validation.Func {
		if owner == nil {
			return func(value interface{}, _ map[string]interface{}) validation.Result {
				return validation.Check(len(values.Strings(value)) == 0, fmt.Sprintf("%s must be specified", requires))
			}
		}
		return eachExists(owner, key)
	}
	natKey := "inboundNatRules"
	if ss != nil {
		natKey = "inboundNatPools"
	}

	rules := nicRules(values.GetInt(vm, "vmCount", 1)).With(
		validation.Rule{Field: "backendPoolNames", Check: refsTo(lb, "backendPools", "loadBalancerSettings")},
		validation.Rule{Field: "inboundNatRulesNames", Check: refsTo(lb, natKey, "loadBalancerSettings")},
		validation.Rule{Field: "applicationGatewayBackendPoolNames", Check: refsTo(gw, "backendAddressPools", "applicationGatewaySettings")},
	)
	if lb == nil && ss == nil {
		rules = rules.With(samePlacement(vm, "Network interface")...)
	}
	return rules
}

// virtualMachineRules validates one merged and placed virtual machine.
func virtualMachineRules(vm map[string]interface{}) validation.Rules {
	osType := values.GetString(vm, "osType")
	vmCount := values.GetInt(vm, "vmCount", 1)
	managed := values.GetBool(vm, "storageAccounts.managed")
	lb := values.GetMap(vm, "loadBalancerSettings")
	gw := values.GetMap(vm, "applicationGatewaySettings")
	ss := values.GetMap(vm, "scaleSetSettings")
	needsImage := values.GetString(vm, "osDisk.createOption") == "fromImage" && values.Get(vm, "osDisk.images") == nil

	natCount := vmCount
	if ss != nil {
		natCount = 0
	}

	rules := placementRules().With(
		validation.Rule{Field: "namePrefix", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "computerNamePrefix", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			s, ok := value.(string)
			if !ok || validation.IsNullOrWhitespace(s) {
				return validation.Fail(validation.MsgNullOrWhitespace)
			}
			return validation.Check(len(s) <= MaxComputerNamePrefixLength,
				fmt.Sprintf("computerNamePrefix must be less than %d characters", MaxComputerNamePrefixLength+1))
		}},
		validation.Rule{Field: "vmCount", Check: validation.IsInRange(1, math.MaxInt32)},
		validation.Rule{Field: "size", Check: validation.NotNullOrWhitespace},
		validation.Rule{Field: "osType", Check: validation.IsOneOf(osLinux, osWindows)},
		validation.Rule{Field: "adminUsername", Check: validation.NotNullOrWhitespace},
	)
	rules = rules.With(authenticationRules(osType)...)
	rules = rules.With(
		validation.Rule{Field: "imageReference", Check: func(value interface{}, parent map[string]interface{}) validation.Result {
			if !needsImage {
				return validation.OK()
			}
			return imageReferenceRules(value, parent)
		}},
		validation.Rule{Field: "osDisk", Check: required(osDiskRules(vmCount, managed), "osDisk must be specified")},
		validation.Rule{Field: "dataDisks", Check: required(dataDiskRules(vmCount, managed), "dataDisks must be specified")},
		validation.Rule{Field: "nics", Check: nonEmptyEachOf(vmNICRules(vm))},
		validation.Rule{Field: "nics", Check: primaryNICs},
		validation.Rule{Field: "virtualNetwork", Check: required(validation.Rules{
			{Field: "name", Check: validation.NotNullOrWhitespace},
		}, "virtualNetwork must be specified")},
		validation.Rule{Field: "availabilitySet", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			as, _ := value.(map[string]interface{})
			if ss != nil || as == nil || validation.IsNullOrWhitespace(as["name"]) {
				return validation.OK()
			}
			return validation.Recurse(availabilitySetRules().With(samePlacement(vm, "Availability set")...))
		}},
		validation.Rule{Field: "storageAccounts", Check: required(
			storageRules().With(samePlacement(vm, "Storage account")...), "storageAccounts must be specified")},
		validation.Rule{Field: "storageAccounts", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			if managed {
				return validation.OK()
			}
			sa, _ := value.(map[string]interface{})
			total := len(values.Strings(sa["accounts"]))
			if n := values.GetInt(sa, "count", 0); n > total {
				total = n
			}
			return validation.Check(total > 0, "Unmanaged disks require at least one storage account")
		}},
		validation.Rule{Field: "diagnosticStorageAccounts", Check: required(
			diagnosticStorageRules().With(samePlacement(vm, "Diagnostic storage account")...), "diagnosticStorageAccounts must be specified")},
		validation.Rule{Field: "loadBalancerSettings", Check: validation.Optional(validation.Nested(
			placementRules().With(loadBalancerRules(lb, natCount)...).With(samePlacement(vm, "Load balancer")...)))},
		validation.Rule{Field: "applicationGatewaySettings", Check: validation.Optional(validation.Nested(
			placementRules().With(applicationGatewayRules(gw)...)))},
		validation.Rule{Field: "scaleSetSettings", Check: validation.Optional(validation.Nested(
			scaleSetRules().With(samePlacement(vm, "Scale set")...)))},
		validation.Rule{Field: "scaleSetSettings", Check: func(value interface{}, _ map[string]interface{}) validation.Result {
			if value == nil {
				return validation.OK()
			}
			if !managed {
				return validation.Fail("Scale sets require managed disks")
			}
			return validation.Check(values.GetString(vm, "osDisk.createOption") == "fromImage" &&
				values.GetString(vm, "dataDisks.properties.createOption") == "empty",
				"Scale sets only support fromImage os disks and empty data disks")
		}},
		validation.Rule{Field: "tags", Check: validation.Tags},
	)
	return rules
}

// vmBuild carries what the per-VM transforms share.
type vmBuild struct {
	r           *refs
	vm          map[string]interface{}
	cloud       resources.Cloud
	osType      string
	managed     bool
	storage     []string
	diagnostics []string
}

// secret is the credential replaced by SecretPlaceholder in the stamps.
func (b *vmBuild) secret() string {
	if pw := values.GetString(b.vm, "adminPassword"); pw != "" {
		return pw
	}
	return values.GetString(b.vm, "sshPublicKey")
}

func (b *vmBuild) osProfile() map[string]interface{} {
	user := values.GetString(b.vm, "adminUsername")
	profile := map[string]interface{}{"adminUsername": user}
	if values.GetString(b.vm, "adminPassword") != "" {
		profile["adminPassword"] = SecretPlaceholder
	}
	if b.osType == osWindows {
		profile["windowsConfiguration"] = map[string]interface{}{"provisionVmAgent": true}
		return profile
	}
	ssh := values.GetString(b.vm, "sshPublicKey") != ""
	linux := map[string]interface{}{"disablePasswordAuthentication": ssh}
	if ssh {
		linux["ssh"] = map[string]interface{}{
			"publicKeys": []interface{}{
				map[string]interface{}{
					"path":    fmt.Sprintf("/home/%s/.ssh/authorized_keys", user),
					"keyData": SecretPlaceholder,
				},
			},
		}
	}
	profile["linuxConfiguration"] = linux
	return profile
}

// vhdURI is the page blob of diskName in the storage account of VM i.
func (b *vmBuild) vhdURI(i int, diskName string) string {
	return fmt.Sprintf("%s/vhds/%s.vhd", b.cloud.BlobEndpoint(roundRobin(b.storage, i)), diskName)
}

// storageProfile builds the storage profile of VM i. An empty vmName omits
// disk names, as scale sets require.
func (b *vmBuild) storageProfile(vmName string, i int) map[string]interface{} {
	osDisk := values.GetMap(b.vm, "osDisk")
	option := values.GetString(osDisk, "createOption")
	images, _ := values.Slice(osDisk["images"])
	diskName := vmName + "-os"

	disk := map[string]interface{}{
		"createOption": createOptions[option],
		"caching":      values.GetString(osDisk, "caching"),
	}
	if size, ok := values.Int(osDisk["diskSizeGB"]); ok {
		disk["diskSizeGB"] = size
	}
	if vmName != "" {
		disk["name"] = diskName
	}

	profile := map[string]interface{}{}
	switch {
	case option == "attach":
		disk["osType"] = osTypeNames[b.osType]
		image := ""
		if i < len(images) {
			image, _ = images[i].(string)
		}
		if b.managed {
			disk["managedDisk"] = map[string]interface{}{"id": image}
		} else {
			disk["vhd"] = map[string]interface{}{"uri": image}
		}
	case len(images) > 0:
		image, _ := images[0].(string)
		disk["osType"] = osTypeNames[b.osType]
		disk["image"] = map[string]interface{}{"uri": image}
		disk["vhd"] = map[string]interface{}{"uri": b.vhdURI(i, diskName)}
	default:
		profile["imageReference"] = b.imageReference()
		if b.managed {
			disk["managedDisk"] = map[string]interface{}{"storageAccountType": values.GetString(b.vm, "storageAccounts.skuType")}
		} else {
			disk["vhd"] = map[string]interface{}{"uri": b.vhdURI(i, diskName)}
		}
	}
	profile["osDisk"] = disk
	profile["dataDisks"] = b.dataDisks(vmName, i)
	return profile
}

func (b *vmBuild) imageReference() map[string]interface{} {
	ir := values.GetMap(b.vm, "imageReference")
	if id := values.GetString(ir, "id"); id != "" {
		return map[string]interface{}{"id": id}
	}
	out := map[string]interface{}{}
	copyFields(out, ir, "publisher", "offer", "sku", "version")
	return out
}

func (b *vmBuild) dataDisks(vmName string, i int) []interface{} {
	dd := values.GetMap(b.vm, "dataDisks")
	props := values.GetMap(dd, "properties")
	option := values.GetString(props, "createOption")
	images, _ := values.Slice(props["images"])

	var perVM []string
	if option == "attach" && i < len(images) {
		perVM = values.Strings(images[i])
	}

	count := values.GetInt(dd, "count", 0)
	out := make([]interface{}, 0, count)
	for k := 0; k < count; k++ {
		name := fmt.Sprintf("%s-dataDisk%d", vmName, k+1)
		disk := map[string]interface{}{
			"lun":          k,
			"createOption": createOptions[option],
			"caching":      values.GetString(props, "caching"),
		}
		if size, ok := values.Int(props["diskSizeGB"]); ok {
			disk["diskSizeGB"] = size
		}
		if vmName != "" {
			disk["name"] = name
		}

		switch option {
		case "attach":
			image := ""
			if k < len(perVM) {
				image = perVM[k]
			}
			if b.managed {
				disk["managedDisk"] = map[string]interface{}{"id": image}
			} else {
				disk["vhd"] = map[string]interface{}{"uri": image}
			}
		case "fromImage":
			image, _ := images[0].(string)
			disk["image"] = map[string]interface{}{"uri": image}
			disk["vhd"] = map[string]interface{}{"uri": b.vhdURI(i, name)}
		default:
			if b.managed {
				disk["managedDisk"] = map[string]interface{}{"storageAccountType": values.GetString(b.vm, "storageAccounts.skuType")}
			} else {
				disk["vhd"] = map[string]interface{}{"uri": b.vhdURI(i, name)}
			}
		}
		out = append(out, disk)
	}
	return out
}

func (b *vmBuild) diagnosticsProfile(i int) map[string]interface{} {
	if len(b.diagnostics) == 0 {
		return map[string]interface{}{"bootDiagnostics": map[string]interface{}{"enabled": false}}
	}
	return map[string]interface{}{
		"bootDiagnostics": map[string]interface{}{
			"enabled":    true,
			"storageUri": b.cloud.BlobEndpoint(roundRobin(b.diagnostics, i)),
		},
	}
}

// vmOutputs are the stamps of one virtual machine settings object.
type vmOutputs struct {
	virtualMachines    []interface{}
	networkInterfaces  []interface{}
	publicIPAddresses  []interface{}
	availabilitySets   []interface{}
	storageAccounts    []interface{}
	diagnosticAccounts []interface{}
	loadBalancers      []interface{}
	scaleSets          []interface{}
	autoScaleSettings  []interface{}
	applicationGateway []interface{}
	secret             string
}

func (o *vmOutputs) add(other vmOutputs) {
	o.virtualMachines = append(o.virtualMachines, other.virtualMachines...)
	o.networkInterfaces = append(o.networkInterfaces, other.networkInterfaces...)
	o.publicIPAddresses = append(o.publicIPAddresses, other.publicIPAddresses...)
	o.availabilitySets = append(o.availabilitySets, other.availabilitySets...)
	o.storageAccounts = append(o.storageAccounts, other.storageAccounts...)
	o.diagnosticAccounts = append(o.diagnosticAccounts, other.diagnosticAccounts...)
	o.loadBalancers = append(o.loadBalancers, other.loadBalancers...)
	o.scaleSets = append(o.scaleSets, other.scaleSets...)
	o.autoScaleSettings = append(o.autoScaleSettings, other.autoScaleSettings...)
	o.applicationGateway = append(o.applicationGateway, other.applicationGateway...)
}

// transformVirtualMachine expands one virtual machine settings object into
// vmCount virtual machines, or a scale set when scaleSetSettings is present,
// together with their sub-resources.
func transformVirtualMachine(r *refs, vm map[string]interface{}, cloud resources.Cloud) vmOutputs {
	prefix := values.GetString(vm, "namePrefix")
	computerPrefix := values.GetString(vm, "computerNamePrefix")
	vmCount := values.GetInt(vm, "vmCount", 1)
	sa := values.GetMap(vm, "storageAccounts")
	diag := values.GetMap(vm, "diagnosticStorageAccounts")
	lb := values.GetMap(vm, "loadBalancerSettings")
	gw := values.GetMap(vm, "applicationGatewaySettings")
	ss := values.GetMap(vm, "scaleSetSettings")
	managed := values.GetBool(sa, "managed")

	existing, generated := storageAccountNames(sa, prefix)
	if managed {
		generated = nil
	}
	diagExisting, diagGenerated := storageAccountNames(diag, prefix)

	b := &vmBuild{
		r:           r,
		vm:          vm,
		cloud:       cloud,
		osType:      values.GetString(vm, "osType"),
		managed:     managed,
		storage:     append(existing, generated...),
		diagnostics: append(diagExisting, diagGenerated...),
	}
	out := vmOutputs{
		storageAccounts:    transformStorageAccounts(sa, generated),
		diagnosticAccounts: transformStorageAccounts(diag, diagGenerated),
		secret:             b.secret(),
	}

	targets := nicTargets{virtualNetwork: values.GetMap(vm, "virtualNetwork"), loadBalancer: lb, appGateway: gw}
	if lb != nil {
		natCount := vmCount
		if ss != nil {
			natCount = 0
		}
		lbStamp, pips := transformLoadBalancer(r, lb, natCount)
		out.loadBalancers = append(out.loadBalancers, lbStamp)
		out.publicIPAddresses = append(out.publicIPAddresses, pips...)
	}
	if gw != nil {
		gwStamp, pips := transformApplicationGateway(r, gw)
		out.applicationGateway = append(out.applicationGateway, gwStamp)
		out.publicIPAddresses = append(out.publicIPAddresses, pips...)
	}

	if ss != nil {
		ssStamp, auto := transformScaleSet(b, ss, targets)
		out.scaleSets = append(out.scaleSets, ssStamp)
		if auto != nil {
			out.autoScaleSettings = append(out.autoScaleSettings, auto)
		}
		return out
	}

	var availabilitySet interface{}
	if as := values.GetMap(vm, "availabilitySet"); as != nil && values.GetString(as, "name") != "" {
		out.availabilitySets = append(out.availabilitySets, transformAvailabilitySet(as, managed))
		availabilitySet = ref(r.of(as, typeAvailabilitySet, values.GetString(as, "name")))
	}
	attach := values.GetString(vm, "osDisk.createOption") == "attach"

	for i := 0; i < vmCount; i++ {
		vmName := fmt.Sprintf("%s-vm%d", prefix, i+1)

		var nicRefs []interface{}
		for j, nic := range values.Maps(vm["nics"]) {
			nicStamp, pip := transformNIC(r, nic, targets, vmName, i, j)
			out.networkInterfaces = append(out.networkInterfaces, nicStamp)
			if pip != nil {
				out.publicIPAddresses = append(out.publicIPAddresses, pip)
			}
			nicRefs = append(nicRefs, map[string]interface{}{
				"id":         nicID(r, nic, vmName, j),
				"properties": map[string]interface{}{"primary": values.GetBool(nic, "isPrimary")},
			})
		}

		props := map[string]interface{}{
			"hardwareProfile":    map[string]interface{}{"vmSize": values.GetString(vm, "size")},
			"storageProfile":     b.storageProfile(vmName, i),
			"networkProfile":     map[string]interface{}{"networkInterfaces": orEmpty(nicRefs)},
			"diagnosticsProfile": b.diagnosticsProfile(i),
			"availabilitySet":    availabilitySet,
		}
		if !attach {
			profile := b.osProfile()
			profile["computerName"] = fmt.Sprintf("%s-vm%d", computerPrefix, i+1)
			props["osProfile"] = profile
		}

		vmStamp := stamp(vm, vmName)
		vmStamp["tags"] = tags(vm)
		vmStamp["properties"] = props
		out.virtualMachines = append(out.virtualMachines, vmStamp)
	}
	return out
}

// ProcessVirtualMachine runs the virtual machine building block. The admin
// password or SSH key is returned once as the "secret" parameter; every
// settings object of one building block must share it.
func ProcessVirtualMachine(in Input) (*Result, error) {
	if err := validateContext(in.Context); err != nil {
		return nil, err
	}
	merged, err := MergeVirtualMachine(in)
	if err != nil {
		return nil, err
	}
	if err := check(in.Settings, merged, root(virtualMachineRules)); err != nil {
		return nil, err
	}

	r := &refs{}
	cloud := in.Context.StorageCloud()
	var all vmOutputs
	for i, vm := range merged {
		o := transformVirtualMachine(r, vm, cloud)
		if i == 0 {
			all.secret = o.secret
		} else if o.secret != all.secret {
			return nil, fmt.Errorf("%w: virtual machines of one building block must share credentials", ErrTransform)
		}
		all.add(o)
	}
	if r.err != nil {
		return nil, r.err
	}

	return &Result{
		ResourceGroups: resources.ExtractResourceGroups(
			all.virtualMachines, all.networkInterfaces, all.publicIPAddresses, all.availabilitySets,
			all.storageAccounts, all.diagnosticAccounts, all.loadBalancers, all.scaleSets,
			all.autoScaleSettings, all.applicationGateway,
		),
		Parameters: map[string]interface{}{
			"virtualMachines":           orEmpty(all.virtualMachines),
			"networkInterfaces":         orEmpty(all.networkInterfaces),
			"publicIpAddresses":         orEmpty(all.publicIPAddresses),
			"availabilitySet":           orEmpty(all.availabilitySets),
			"storageAccounts":           orEmpty(all.storageAccounts),
			"diagnosticStorageAccounts": orEmpty(all.diagnosticAccounts),
			"loadBalancer":              orEmpty(all.loadBalancers),
			"scaleSet":                  orEmpty(all.scaleSets),
			"autoScaleSettings":         orEmpty(all.autoScaleSettings),
			"applicationGateway":        orEmpty(all.applicationGateway),
		},
		Secrets: map[string]string{"secret": all.secret},
	}, nil
}
