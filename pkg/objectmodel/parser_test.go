package objectmodel

import (
	"testing"

	"github.com/sailmerge/sailmerge/pkg/appzip"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(objType core.ObjectType, fileName, xml string) appzip.Entry {
	return appzip.Entry{ObjectType: objType, FileName: fileName, XML: []byte(xml)}
}

func TestParse_Interface(t *testing.T) {
	xml := `<interface uuid="u-1" name="My Form" versionUuid="v-1">
		<parameters>
			<parameter name="pv!b" type="Text"/>
			<parameter name="pv!a" type="Number"/>
		</parameters>
		<security>expr!canEdit</security>
		<code>a!formLayout()</code>
	</interface>`

	obj, warn := Parse(entry(core.ObjectTypeInterface, "interface/my_form.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	assert.Equal(t, "u-1", obj.UUID)
	assert.Equal(t, "My Form", obj.Name)
	assert.Equal(t, core.ObjectTypeInterface, obj.ObjectType)
	assert.Equal(t, "v-1", obj.Version.VersionUUID)
	assert.Equal(t, "a!formLayout()", obj.Version.ScriptedCode)
	assert.Equal(t, "expr!canEdit", obj.Version.Properties["security"])

	params := obj.Version.Fields["parameters"].([]map[string]any)
	require.Len(t, params, 2)
	assert.Equal(t, "pv!a", params[0]["name"], "parameters must be sorted by name for determinism")
}

func TestParse_ExpressionRule(t *testing.T) {
	xml := `<rule uuid="u-2" name="calc_total" versionUuid="v-2">
		<inputs><input name="items" type="List"/></inputs>
		<outputType>Number</outputType>
		<code>sum(ri!items)</code>
	</rule>`

	obj, warn := Parse(entry(core.ObjectTypeExpressionRule, "rule/calc_total.xml", xml), core.RoleCustomized)
	require.Nil(t, warn)
	assert.Equal(t, "sum(ri!items)", obj.Version.ScriptedCode)
	assert.Equal(t, "Number", obj.Version.Fields["outputType"])
}

func TestParse_Integration(t *testing.T) {
	xml := `<integration uuid="u-3" name="Fetch Orders" versionUuid="v-3">
		<endpoint>https://example.com/orders</endpoint>
		<methods><method>POST</method><method>GET</method></methods>
		<auth>oauth2</auth>
		<code>a!httpIntegration()</code>
	</integration>`

	obj, warn := Parse(entry(core.ObjectTypeIntegration, "integration/fetch_orders.xml", xml), core.RoleNewVendor)
	require.Nil(t, warn)
	methods := obj.Version.Fields["methods"].([]string)
	assert.Equal(t, []string{"GET", "POST"}, methods)
	assert.Equal(t, "oauth2", obj.Version.Properties["auth"])
}

func TestParse_ProcessModel(t *testing.T) {
	xml := `<processModel uuid="u-4" name="Approval" versionUuid="v-4">
		<nodes>
			<node uuid="n-2" name="End" type="end"/>
			<node uuid="n-1" name="Start" type="start"/>
		</nodes>
		<flows>
			<flow source="n-1" target="n-2" condition=""/>
		</flows>
		<variables>
			<variable name="pv!amount" type="Number" default="0"/>
		</variables>
	</processModel>`

	obj, warn := Parse(entry(core.ObjectTypeProcessModel, "processModel/approval.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	nodes := obj.Version.Fields["nodes"].([]map[string]any)
	require.Len(t, nodes, 2)
	assert.Equal(t, "n-2", nodes[0]["uuid"], "node order is graph-semantic and preserved as written")
	flows := obj.Version.Fields["flows"].([]map[string]any)
	require.Len(t, flows, 1)
	assert.Equal(t, "n-1", flows[0]["source"])
}

func TestParse_RecordType(t *testing.T) {
	xml := `<recordType uuid="u-5" name="Order" versionUuid="v-5">
		<fields>
			<field name="total" type="Number"/>
			<field name="id" type="Text"/>
		</fields>
		<relationships><relationship name="customer" type="Record"/></relationships>
		<views><view>Summary</view></views>
		<actions><action>Approve</action></actions>
	</recordType>`

	obj, warn := Parse(entry(core.ObjectTypeRecordType, "recordType/order.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	fields := obj.Version.Fields["fields"].([]map[string]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "id", fields[0]["name"], "fields sorted by name")
}

func TestParse_CDT(t *testing.T) {
	xml := `<cdt uuid="u-6" name="OrderLine" versionUuid="v-6">
		<fields><field name="qty" type="Integer"/></fields>
	</cdt>`

	obj, warn := Parse(entry(core.ObjectTypeCDT, "cdt/orderline.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	fields := obj.Version.Fields["fields"].([]map[string]any)
	require.Len(t, fields, 1)
	assert.Equal(t, "qty", fields[0]["name"])
}

func TestParse_Constant(t *testing.T) {
	xml := `<constant uuid="u-7" name="MAX_RETRIES" versionUuid="v-7" dataType="Number" scope="APPLICATION">
		<value>3</value>
	</constant>`

	obj, warn := Parse(entry(core.ObjectTypeConstant, "constant/max_retries.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	assert.Equal(t, "3", obj.Version.Fields["value"])
	assert.Equal(t, "Number", obj.Version.Fields["dataType"])
}

func TestParse_Site(t *testing.T) {
	xml := `<site uuid="u-8" name="Portal" versionUuid="v-8">
		<pages>
			<page name="Home">
				<page name="Orders"/>
				<page name="Profile"/>
			</page>
		</pages>
	</site>`

	obj, warn := Parse(entry(core.ObjectTypeSite, "site/portal.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	pages := obj.Version.Fields["pages"].([]map[string]any)
	require.Len(t, pages, 1)
	assert.Equal(t, "Home", pages[0]["name"])
	children := pages[0]["children"].([]map[string]any)
	require.Len(t, children, 2)
	assert.Equal(t, "Orders", children[0]["name"], "page hierarchy order is preserved, not sorted")
}

func TestParse_Group(t *testing.T) {
	xml := `<group uuid="u-9" name="Finance Approvers" versionUuid="v-9" parentUuid="u-root">
		<members><member>bob</member><member>alice</member></members>
	</group>`

	obj, warn := Parse(entry(core.ObjectTypeGroup, "group/finance_approvers.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	assert.Equal(t, "u-root", obj.Version.Fields["parentUuid"])
	assert.Equal(t, []string{"alice", "bob"}, obj.Version.Fields["members"])
}

func TestParse_ConnectedSystem(t *testing.T) {
	xml := `<connectedSystem uuid="u-10" name="SAP" versionUuid="v-10" systemType="SAP">
		<properties><property name="host" type="Text"/></properties>
	</connectedSystem>`

	obj, warn := Parse(entry(core.ObjectTypeConnectedSystem, "connectedSystem/sap.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	assert.Equal(t, "SAP", obj.Version.Fields["systemType"])
	props := obj.Version.Properties["properties"].([]map[string]any)
	require.Len(t, props, 1)
}

func TestParse_DataStore(t *testing.T) {
	xml := `<dataStore uuid="u-11" name="OrdersDB" versionUuid="v-11">
		<entities><entity>orders</entity><entity>customers</entity></entities>
	</dataStore>`

	obj, warn := Parse(entry(core.ObjectTypeDataStore, "dataStore/ordersdb.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	assert.Equal(t, []string{"customers", "orders"}, obj.Version.Fields["entities"])
}

func TestParse_MalformedXML_FallsBackToUnknown(t *testing.T) {
	obj, warn := Parse(entry(core.ObjectTypeInterface, "interface/broken.xml", "<interface not valid xml"), core.RoleBase)
	require.NotNil(t, warn, "a malformed object must produce exactly one warning")
	assert.Equal(t, "interface/broken.xml", warn.FileName)
	assert.Equal(t, core.ObjectTypeUnknown, obj.ObjectType)
	assert.Equal(t, []byte("<interface not valid xml"), obj.Version.RawXML)
	assert.NotEmpty(t, obj.UUID, "fallback objects still need a stable identity")
}

func TestParse_MissingUUID_FallsBackToUnknown(t *testing.T) {
	obj, warn := Parse(entry(core.ObjectTypeConstant, "constant/noid.xml", `<constant name="X"/>`), core.RoleBase)
	require.NotNil(t, warn)
	assert.Equal(t, core.ObjectTypeUnknown, obj.ObjectType)
}

func TestParse_UnknownDirectoryType_ProducesEmptyPayload(t *testing.T) {
	xml := `<weird uuid="u-12" name="Thing" versionUuid="v-12"/>`
	obj, warn := Parse(entry(core.ObjectTypeUnknown, "weirdDir/thing.xml", xml), core.RoleBase)
	require.Nil(t, warn)
	assert.Equal(t, "u-12", obj.UUID)
	assert.Empty(t, obj.Version.Fields)
}
